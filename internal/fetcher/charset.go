package fetcher

import (
	"mime"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

const sniffLen = 1024

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-z0-9_\-:.]+)`)

// charsetOf returns the declared encoding label: the Content-Type charset
// parameter, else a <meta> declaration near the top of the document, else
// utf-8.
func charsetOf(contentType string, body []byte) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			return strings.ToLower(cs)
		}
	}
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if m := metaCharset.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	return "utf-8"
}

// toUTF8 decodes body from the named encoding. It returns the canonical
// encoding name alongside the decoded bytes.
func toUTF8(label string, body []byte) ([]byte, string, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", eris.Wrapf(err, "fetcher: unsupported charset %q", label)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = label
	}
	if name == "utf-8" {
		return body, name, nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, name, eris.Wrapf(err, "fetcher: decode %s", name)
	}
	return out, name, nil
}
