package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
)

var (
	anyURL         = regexp.MustCompile(`https?://[^\s\]]+`)
	shareVideo     = regexp.MustCompile(`https://www\.tiktokv\.com/share/video/(\d+)(?:/|$)`)
	shareVideoText = regexp.MustCompile(`(?i)https://www\.tiktokv\.com/share/video/(\d+)`)
	storageObject  = regexp.MustCompile(`(?i)https://video-(?:[^/]+)\.tiktokv\.com/storage/v1/[^/]+/([^/?&]+)`)
	lastSegment    = regexp.MustCompile(`(?i)/([^/?&]+)(?:\?|$)`)
	bracketedURL   = regexp.MustCompile(`\[https?://[^\]]+/([^/?\]]+)(?:\?[^\]]*)?\]`)
	plainURL       = regexp.MustCompile(`https?://[^\s]+/([^/?\s]+)(?:\?[^\s]*)?`)
	effectURL      = regexp.MustCompile(`(?i)https?://(?:www\.)?tiktok\.com/[^\s]*/(?:effect|sticker)/([^/?\s]+)`)
	markupTag      = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
)

var mediaMarkers = []string{".mp4", ".mp3", ".jpg", ".png", ".gif", ".webp", "tiktok.com", "tiktokv.com"}

// ShortHash returns up to n upper-case base-36 characters of a 32-bit
// h = h*31 + c hash over the UTF-16 units of s.
func ShortHash(s string, n int) string {
	if s == "" {
		return ""
	}
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	out := strings.ToUpper(strconv.FormatInt(v, 36))
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// VideoHash reduces a video link to a short identifier: the numeric id of a
// share URL, a hash of a storage object id, the file name (hashed when longer
// than 20 characters), or a hash of the whole URL.
func VideoHash(url string) string {
	if url == "" {
		return ""
	}
	if m := shareVideo.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := storageObject.FindStringSubmatch(url); m != nil && m[1] != "" {
		return ShortHash(m[1], 10)
	}
	if m := lastSegment.FindStringSubmatch(url); m != nil && m[1] != "" {
		if len([]rune(m[1])) > 20 {
			return ShortHash(url, 10)
		}
		return m[1]
	}
	return ShortHash(url, 12)
}

// StripMarkup returns the text content of s when it contains HTML tags.
func StripMarkup(s string) string {
	if !markupTag.MatchString(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// replaceVideoURLs swaps share URLs in free text for their numeric ids.
func replaceVideoURLs(s string) string {
	return shareVideoText.ReplaceAllString(s, "$1")
}

// replaceMediaURLs swaps bracketed URLs, and bare URLs that point at media or
// TikTok hosts, for their file names.
func replaceMediaURLs(s string) string {
	s = bracketedURL.ReplaceAllString(s, "$1")
	return plainURL.ReplaceAllStringFunc(s, func(u string) string {
		for _, m := range mediaMarkers {
			if strings.Contains(u, m) {
				return plainURL.FindStringSubmatch(u)[1]
			}
		}
		return u
	})
}

// soundName extracts the file name of a sound link.
func soundName(s string) string {
	if m := bracketedURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := plainURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// effectName is soundName, preferring the id of a TikTok effect or sticker URL.
func effectName(s string) string {
	if m := bracketedURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := effectURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := plainURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// Shorten cuts text to at most maxLen characters (plus ellipsis), backing up
// to a space past the halfway mark. With preserveURLs, a URL straddling the
// cut is kept whole.
func Shorten(text string, maxLen int, preserveURLs bool, ellipsis string) string {
	if len([]rune(text)) <= maxLen {
		return text
	}

	work := text
	type placeholder struct{ key, url string }
	var urls []placeholder
	if preserveURLs {
		locs := anyURL.FindAllStringIndex(text, -1)
		for i := len(locs) - 1; i >= 0; i-- {
			key := "__URL_" + strconv.Itoa(i) + "__"
			urls = append(urls, placeholder{key: key, url: text[locs[i][0]:locs[i][1]]})
			work = work[:locs[i][0]] + key + work[locs[i][1]:]
		}
	}

	r := []rune(work)
	if len(r) > maxLen {
		cut := maxLen - len([]rune(ellipsis))
		if cut < 0 {
			cut = 0
		}
		if sp := lastIndexRune(r, ' ', cut); float64(sp) > float64(maxLen)*0.5 {
			cut = sp
		}
		for _, p := range urls {
			idx := runeIndex(r, p.key)
			if idx != -1 && idx < cut && idx+len([]rune(p.key)) > cut {
				cut = idx + len([]rune(p.key))
				break
			}
		}
		work = strings.TrimSpace(string(r[:cut])) + ellipsis
	}

	for _, p := range urls {
		work = strings.Replace(work, p.key, p.url, 1)
	}
	return work
}

// SmartTruncate cuts text to maxLen characters including the ellipsis, at the
// last space or punctuation past the halfway point when there is one.
func SmartTruncate(text string, maxLen int, ellipsis string) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	cut := maxLen - len([]rune(ellipsis))
	if cut < 0 {
		cut = 0
	}
	t := r[:cut]
	brk := -1
	for i := len(t) - 1; i >= 0; i-- {
		if strings.ContainsRune(" .,!?;:", t[i]) {
			brk = i
			break
		}
	}
	if float64(brk) > float64(cut)*0.5 {
		t = t[:brk]
	}
	return strings.TrimSpace(string(t)) + ellipsis
}

// lastIndexRune returns the last index <= from holding c, or -1.
func lastIndexRune(r []rune, c rune, from int) int {
	if from >= len(r) {
		from = len(r) - 1
	}
	for i := from; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}

func runeIndex(r []rune, sub string) int {
	i := strings.Index(string(r), sub)
	if i < 0 {
		return -1
	}
	return len([]rune(string(r)[:i]))
}
