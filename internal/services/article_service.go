package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/seed"
)

const maxSlugLength = 80

var articleHTMLPolicy = newArticleHTMLPolicy()

// ArticleServiceDeps groups constructor parameters for the article service.
type ArticleServiceDeps struct {
	Sync     SyncDeps
	Remote   collections.Backend[domain.Article]
	Defaults []domain.Article
}

type articleService struct {
	*Collection[domain.Article]
	markdown goldmark.Markdown
}

// NewArticleService mounts the article collection.
func NewArticleService(deps ArticleServiceDeps) (ArticleService, error) {
	defaults := deps.Defaults
	if defaults == nil {
		var err error
		if defaults, err = seed.Articles(); err != nil {
			return nil, fmt.Errorf("article service: %w", err)
		}
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.Article]{
		schema:   ArticleSchema,
		key:      deps.Sync.key(CollectionArticles),
		defaults: defaults,
		policy:   ArticleSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("article service: %w", err)
	}
	return &articleService{
		Collection: coll,
		markdown:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

// Create assigns a unique slug derived from the title when none is given.
func (s *articleService) Create(ctx context.Context, article domain.Article) (domain.Article, error) {
	base := Slugify(article.Slug)
	if base == "" {
		base = Slugify(article.Title)
	}
	article.Slug = uniqueSlug(base, s.List(ctx), "")
	return s.Collection.Create(ctx, article)
}

// Update normalises a slug carried by patch. An empty slug is derived from the title again.
func (s *articleService) Update(ctx context.Context, id string, patch collections.Patch) (domain.Article, error) {
	if raw, ok := patch["slug"]; ok {
		current, err := s.Get(ctx, id)
		if err != nil {
			return current, err
		}
		slug, _ := raw.(string)
		base := Slugify(slug)
		if base == "" {
			title := current.Title
			if t, ok := patch["title"].(string); ok {
				title = t
			}
			base = Slugify(title)
		}
		patch = clonePatch(patch)
		patch["slug"] = uniqueSlug(base, s.List(ctx), id)
	}
	return s.Collection.Update(ctx, id, patch)
}

func (s *articleService) Published(ctx context.Context) []domain.Article {
	return domain.PublishedArticles(s.List(ctx))
}

func (s *articleService) Featured(ctx context.Context) []domain.Article {
	return domain.FeaturedArticles(s.List(ctx))
}

// Search narrows published articles by category and a title or category query.
func (s *articleService) Search(ctx context.Context, category, query string) []domain.Article {
	return domain.FilterArticles(s.Published(ctx), category, query)
}

// BySlug returns a published article addressed by slug or id, rendered.
func (s *articleService) BySlug(ctx context.Context, slug string) (ArticleView, error) {
	slug = strings.TrimSpace(slug)
	for _, a := range s.Published(ctx) {
		if a.Slug == slug || a.ID == slug {
			return s.Render(a)
		}
	}
	return ArticleView{}, fmt.Errorf("%w: article %s", ErrNotFound, slug)
}

// Render converts the markdown body to sanitised HTML.
func (s *articleService) Render(article domain.Article) (ArticleView, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(article.Content), &buf); err != nil {
		return ArticleView{}, fmt.Errorf("article service: render %s: %w", article.ID, err)
	}
	return ArticleView{
		Article: article,
		HTML:    strings.TrimSpace(string(articleHTMLPolicy.SanitizeBytes(buf.Bytes()))),
	}, nil
}

// Slugify folds accents and reduces s to lower-case ASCII words joined by hyphens.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

func uniqueSlug(base string, articles []domain.Article, selfID string) string {
	if base == "" {
		base = "articolo"
	}
	taken := make(map[string]bool, len(articles))
	for _, a := range articles {
		if a.ID != selfID {
			taken[a.Slug] = true
		}
	}
	slug := base
	for n := 2; taken[slug]; n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	return slug
}

func clonePatch(patch collections.Patch) collections.Patch {
	out := make(collections.Patch, len(patch))
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func newArticleHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}
