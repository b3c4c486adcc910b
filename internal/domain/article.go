package domain

import (
	"sort"
	"strings"
)

// ArticleStatus is the editorial state of an article.
type ArticleStatus string

const (
	ArticlePublished ArticleStatus = "published"
	ArticleDraft     ArticleStatus = "draft"
)

// ArticleCategories lists the editorial sections.
var ArticleCategories = []string{"Partite", "Interviste", "Mercato", "Storia", "Community", "Eventi"}

// Article is a news item. Content is markdown.
type Article struct {
	ID       string        `json:"id" firestore:"-"`
	Title    string        `json:"title" firestore:"title"`
	Slug     string        `json:"slug,omitempty" firestore:"slug,omitempty"`
	Excerpt  string        `json:"excerpt" firestore:"excerpt"`
	Content  string        `json:"content" firestore:"content"`
	Category string        `json:"category" firestore:"category"`
	Image    string        `json:"image" firestore:"image"`
	Author   string        `json:"author" firestore:"author"`
	Date     string        `json:"date" firestore:"date"`
	Status   ArticleStatus `json:"status" firestore:"status"`
	Featured bool          `json:"featured" firestore:"featured"`
}

// ValidateArticle requires a title, a known category and a known status.
func ValidateArticle(a Article) error {
	if strings.TrimSpace(a.Title) == "" {
		return invalid("title", "is required")
	}
	if !IsArticleCategory(a.Category) {
		return invalid("category", "%q is not a known section", a.Category)
	}
	switch a.Status {
	case ArticlePublished, ArticleDraft:
	default:
		return invalid("status", "%q is not supported", a.Status)
	}
	return nil
}

// IsArticleCategory reports whether name is an editorial section.
func IsArticleCategory(name string) bool {
	for _, c := range ArticleCategories {
		if c == name {
			return true
		}
	}
	return false
}

// PublishedArticles returns published articles, newest first.
func PublishedArticles(articles []Article) []Article {
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if a.Status == ArticlePublished {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// FeaturedArticles returns the featured subset of published articles.
func FeaturedArticles(articles []Article) []Article {
	out := make([]Article, 0)
	for _, a := range PublishedArticles(articles) {
		if a.Featured {
			out = append(out, a)
		}
	}
	return out
}

// FilterArticles narrows articles by category and a case-insensitive title or category search.
func FilterArticles(articles []Article, category, query string) []Article {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if category != "" && a.Category != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Title), query) &&
			!strings.Contains(strings.ToLower(a.Category), query) {
			continue
		}
		out = append(out, a)
	}
	return out
}
