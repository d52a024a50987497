package catalog

// Response is the storefront catalog payload.
type Response struct {
	Courses []Course `json:"courses"`
}

type Course struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Slug         string     `json:"slug"`
	ImageURL     string     `json:"image_url"`
	Label        string     `json:"label"`
	WhatYouLearn string     `json:"what_you_learn"`
	Instructor   Instructor `json:"instructor"`
	Pricing      Pricing    `json:"pricing"`
	WebsiteID    []string   `json:"website_id"`
	Sections     []Section  `json:"sections"`
}

type Instructor struct {
	Name  string `json:"name"`
	Bio   string `json:"bio"`
	Image string `json:"image"`
}

type Pricing struct {
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	IsFree         bool     `json:"is_free"`
	CompareAtPrice *float64 `json:"compare_at_price"`
}

type Section struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	OrderIndex int        `json:"order_index"`
	Activities []Activity `json:"activities"`
}

type Activity struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	SourceURL       string `json:"source_url"`
	OrderIndex      int    `json:"order_index"`
	DurationSeconds int    `json:"duration_seconds"`
}
