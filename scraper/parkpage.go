package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultParkPagesBaseURL serves the California State Parks park pages.
const DefaultParkPagesBaseURL = "https://www.parks.ca.gov"

var (
	phonePattern       = regexp.MustCompile(`\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`)
	relativePathPrefix = regexp.MustCompile(`^(\.\./)+|^\./`)
)

var descriptionBoilerplate = []string{
	"copyright", "privacy policy", "all rights reserved",
	"subscribe", "newsletter", "follow us",
	"check current weather", "google map",
}

// ParkPage is descriptive metadata scraped from a state park page. It
// enriches facility listings and plays no part in availability.
type ParkPage struct {
	PageID      int      `json:"page_id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Email       string   `json:"email,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
}

// ParkPages fetches park pages, sharing a rate limiter across requests.
type ParkPages struct {
	client  *http.Client
	baseURL string
	limiter *RateLimiter
}

func NewParkPages(baseURL string, limiter *RateLimiter) *ParkPages {
	if baseURL == "" {
		baseURL = DefaultParkPagesBaseURL
	}
	return &ParkPages{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
	}
}

// Fetch downloads and parses the page with the given page_id.
func (p *ParkPages) Fetch(ctx context.Context, pageID int) (*ParkPage, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/?page_id=%d", p.baseURL, pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: ReserveCalifornia, Status: StatusNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Provider: ReserveCalifornia,
			Status:   StatusNetworkError,
			Message:  fmt.Sprintf("park page %d: unexpected status %d", pageID, resp.StatusCode),
		}
	}
	return ParseParkPage(resp.Body, pageID, p.baseURL)
}

// ParseParkPage extracts metadata from a park page. Relative photo paths are
// resolved against baseURL.
func ParseParkPage(r io.Reader, pageID int, baseURL string) (*ParkPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &UpstreamError{Provider: ReserveCalifornia, Status: StatusParseError, Err: err}
	}

	page := &ParkPage{
		PageID: pageID,
		Title:  strings.TrimSpace(doc.Find("title").First().Text()),
	}

	content := doc.Find("#main-content .col-md-9 .container").First()
	if content.Length() == 0 {
		content = doc.Find(".entry-content, article").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	page.Description = parkDescription(content)
	page.Photos = parkPhotos(doc, pageID, strings.TrimRight(baseURL, "/"))
	page.Amenities = parkAmenities(doc, content)
	page.Phone = phonePattern.FindString(doc.Text())

	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		email := strings.TrimSpace(strings.TrimPrefix(href, "mailto:"))
		if strings.Contains(email, "@") {
			page.Email = email
			return false
		}
		return true
	})

	return page, nil
}

func parkDescription(content *goquery.Selection) string {
	var parts []string
	paragraphs := content.Find("p")
	paragraphs.Slice(0, min(10, paragraphs.Length())).EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if len(text) <= 20 {
			return true
		}
		lower := strings.ToLower(text)
		if strings.HasPrefix(lower, "weather") || strings.HasPrefix(lower, "location") {
			return false
		}
		for _, skip := range descriptionBoilerplate {
			if strings.Contains(lower, skip) {
				return true
			}
		}
		parts = append(parts, text)
		return len(parts) < 5
	})
	return strings.Join(parts, "\n\n")
}

func parkPhotos(doc *goquery.Document, pageID int, baseURL string) []string {
	marker := fmt.Sprintf("/pages/%d/images/", pageID)
	seen := make(map[string]bool)
	var photos []string
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if !strings.Contains(src, marker) && !strings.Contains(strings.ToLower(src), "/parkimages/") {
			return
		}
		if !strings.HasPrefix(src, "http") {
			clean := relativePathPrefix.ReplaceAllString(src, "")
			src = baseURL + "/" + strings.TrimLeft(clean, "/")
		}
		if seen[src] {
			return
		}
		seen[src] = true
		photos = append(photos, src)
	})
	return photos
}

func parkAmenities(doc *goquery.Document, content *goquery.Selection) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(_ int, li *goquery.Selection) {
		text := strings.TrimSpace(li.Text())
		if len(text) <= 5 || len(text) >= 100 || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, text)
	}

	doc.Find("#accordionparkinfo .card").Each(func(_ int, card *goquery.Selection) {
		heading := card.Find("h2, h3, h4, button").First()
		if !strings.Contains(strings.ToLower(heading.Text()), "activit") {
			return
		}
		body := card.Find(".card-body")
		if body.Length() == 0 {
			body = card
		}
		body.Find("li").Each(add)
	})
	if len(out) > 0 {
		return out
	}

	content.Find("ul li").Each(func(i int, li *goquery.Selection) {
		lower := strings.ToLower(li.Text())
		for _, nav := range []string{"home", "contact us", "about us", "faq", "facebook", "twitter", "instagram"} {
			if strings.Contains(lower, nav) {
				return
			}
		}
		add(i, li)
	})
	return out
}
