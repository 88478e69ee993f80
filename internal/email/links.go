package email

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link types reported by the click endpoint. Classified from the target URL
// so analytics can tell wallet adds apart from plain card views.
const (
	LinkTypeGoogleWallet = "google_wallet"
	LinkTypeAppleWallet  = "apple_wallet"
	LinkTypeCard         = "card"
	LinkTypeOther        = "other"
)

// MessageIDFor derives the tracking message id from the job id. Determinism
// matters: a redelivered job reuses the id, so the open pixel and click links
// in a duplicate send attribute to the same dispatch.
func MessageIDFor(jobID string) string {
	sum := sha256.Sum256([]byte("email|" + jobID))
	return hex.EncodeToString(sum[:16])
}

// OpenPixelURL is the 1x1 image fetched when the message is rendered. The
// .gif suffix keeps strict image proxies happy.
func OpenPixelURL(base, messageID string) string {
	return strings.TrimSuffix(base, "/") + "/track/email/open/" + messageID + ".gif"
}

// ClickURL wraps a destination so the click passes through the tracking
// redirect first.
func ClickURL(base, messageID, target string) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("mid", messageID)
	q.Set("type", ClassifyLink(target))

	return strings.TrimSuffix(base, "/") + "/track/email/click?" + q.Encode()
}

func ClassifyLink(target string) string {
	switch {
	case strings.Contains(target, "pay.google.com"):
		return LinkTypeGoogleWallet
	case strings.Contains(target, ".pkpass"), strings.Contains(target, "passes/apple/"):
		return LinkTypeAppleWallet
	case strings.Contains(target, "/cards/"):
		return LinkTypeCard
	default:
		return LinkTypeOther
	}
}

// RewriteLinks routes every anchor href in the HTML body through the click
// endpoint and appends the open pixel before </body>. Anchors that already
// point at the tracking endpoint are left alone.
func RewriteLinks(htmlBody, base, messageID string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return "", err
	}

	trackPrefix := strings.TrimSuffix(base, "/") + "/track/"

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for i, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if strings.HasPrefix(attr.Val, trackPrefix) || !strings.HasPrefix(attr.Val, "http") {
					continue
				}
				n.Attr[i].Val = ClickURL(base, messageID, attr.Val)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	appendOpenPixel(doc, base, messageID)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func appendOpenPixel(doc *html.Node, base, messageID string) {
	var body *html.Node

	var find func(*html.Node)
	find = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	if body == nil {
		return
	}

	body.AppendChild(&html.Node{
		Type: html.ElementNode,
		Data: "img",
		Attr: []html.Attribute{
			{Key: "src", Val: OpenPixelURL(base, messageID)},
			{Key: "width", Val: "1"},
			{Key: "height", Val: "1"},
			{Key: "alt", Val: ""},
		},
	})
}
