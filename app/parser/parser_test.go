package parser

import (
	"testing"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>https://example.com/</link>
    <description>Example description</description>
    <item>
      <guid>https://example.com/articles/1</guid>
      <title>First Article</title>
      <link>https://example.com/articles/1</link>
      <description>Summary one</description>
      <author>alice@example.com (Alice)</author>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <enclosure url="https://example.com/audio/1.mp3" type="audio/mpeg" length="1024"/>
    </item>
    <item>
      <title>No GUID Article</title>
      <link>https://example.com/articles/2</link>
      <description>Summary two</description>
    </item>
  </channel>
</rss>`

func TestParseNormalizesItems(t *testing.T) {
	p := NewParser()

	metadata, items, err := p.Parse("https://example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if metadata.Title != "Example Feed" {
		t.Errorf("Expected feed title 'Example Feed', got '%s'", metadata.Title)
	}
	if metadata.Link != "https://example.com/" {
		t.Errorf("Expected feed link 'https://example.com/', got '%s'", metadata.Link)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "First Article" {
		t.Errorf("Expected title 'First Article', got '%s'", first.Title)
	}
	if first.URL != "https://example.com/articles/1" {
		t.Errorf("Unexpected item URL: %s", first.URL)
	}
	if first.Published == nil {
		t.Error("Expected published date to be set")
	}
	if len(first.Attachments) != 1 || first.Attachments[0].URL != "https://example.com/audio/1.mp3" {
		t.Errorf("Expected one attachment, got %+v", first.Attachments)
	}
}

func TestParseItemIDsAreStable(t *testing.T) {
	p := NewParser()

	_, items1, err := p.Parse("https://example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("First parse failed: %v", err)
	}
	_, items2, err := p.Parse("https://example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Second parse failed: %v", err)
	}

	for i := range items1 {
		if items1[i].ID != items2[i].ID {
			t.Errorf("Item %d id changed between parses: %s vs %s", i, items1[i].ID, items2[i].ID)
		}
	}
}

func TestParseItemIDsDifferPerFeed(t *testing.T) {
	p := NewParser()

	_, itemsA, err := p.Parse("https://a.example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	_, itemsB, err := p.Parse("https://b.example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if itemsA[0].ID == itemsB[0].ID {
		t.Error("Expected different ids for the same entry in different feeds")
	}
}

func TestParseFallsBackToLinkForMissingGUID(t *testing.T) {
	p := NewParser()

	_, items, err := p.Parse("https://example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := ItemID("https://example.com/feed.xml", "https://example.com/articles/2")
	if items[1].ID != want {
		t.Errorf("Expected link-derived id %s, got %s", want, items[1].ID)
	}
}

func TestParseRejectsMalformedDocument(t *testing.T) {
	p := NewParser()

	_, _, err := p.Parse("https://example.com/feed.xml", []byte("not a feed"))
	if err == nil {
		t.Error("Expected error for malformed document")
	}
}

func TestArticleConversion(t *testing.T) {
	p := NewParser()

	_, items, err := p.Parse("https://example.com/feed.xml", []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	articles := Articles("account-1", items)
	if len(articles) != len(items) {
		t.Fatalf("Expected %d articles, got %d", len(items), len(articles))
	}
	if articles[0].AccountID != "account-1" {
		t.Errorf("Expected account id 'account-1', got '%s'", articles[0].AccountID)
	}
	if articles[0].ID != items[0].ID {
		t.Error("Expected article id to carry over from item")
	}
}
