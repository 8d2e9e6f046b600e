package news

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/model"
)

//go:generate mockgen -package=news_test -destination=mock_feed_test.go -source=feed.go Feed

// Feed returns the current batch of upstream news entries.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) ([]model.RawNewsEntry, error)
}

const clsBaseURL = "https://www.cls.cn"

// CLSFeed polls the Cailian Press telegraph roll.
type CLSFeed struct {
	client  collector.HTTPClient
	baseURL string
	limit   int
	loc     *time.Location
}

// NewCLSFeed creates the feed. An empty baseURL uses the public endpoint.
func NewCLSFeed(client collector.HTTPClient, baseURL string, limit int, loc *time.Location) *CLSFeed {
	if baseURL == "" {
		baseURL = clsBaseURL
	}
	if limit <= 0 {
		limit = 50
	}
	if loc == nil {
		loc = time.Local
	}
	return &CLSFeed{client: client, baseURL: strings.TrimRight(baseURL, "/"), limit: limit, loc: loc}
}

func (f *CLSFeed) Name() string { return "cls" }

type clsResponse struct {
	Error int `json:"error"`
	Data  struct {
		RollData []struct {
			Title   string `json:"title"`
			Content string `json:"content"`
			Brief   string `json:"brief"`
			Ctime   int64  `json:"ctime"`
		} `json:"roll_data"`
	} `json:"data"`
}

func (f *CLSFeed) Fetch(ctx context.Context) ([]model.RawNewsEntry, error) {
	q := url.Values{}
	q.Set("app", "CailianpressWeb")
	q.Set("os", "web")
	q.Set("rn", strconv.Itoa(f.limit))
	u := f.baseURL + "/nodeapi/telegraphList?" + q.Encode()

	var resp clsResponse
	if err := collector.GetJSON(ctx, f.client, f.Name(), u, map[string]string{"Referer": f.baseURL + "/telegraph"}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("cls api error %d", resp.Error)
	}

	out := make([]model.RawNewsEntry, 0, len(resp.Data.RollData))
	for _, r := range resp.Data.RollData {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			content = strings.TrimSpace(r.Brief)
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = bracketTitle(content)
		}
		ts := time.Unix(r.Ctime, 0).In(f.loc)
		out = append(out, model.RawNewsEntry{
			Title:   title,
			Content: content,
			Date:    ts.Format(time.DateOnly),
			Time:    ts.Format(time.TimeOnly),
		})
	}
	return out, nil
}

// bracketTitle extracts a leading 【headline】 from telegraph content.
func bracketTitle(content string) string {
	rest, ok := strings.CutPrefix(content, "【")
	if !ok {
		return ""
	}
	title, _, ok := strings.Cut(rest, "】")
	if !ok {
		return ""
	}
	return title
}
