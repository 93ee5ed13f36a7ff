package youtube

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseCookieFile reads a Netscape-format cookie file: one cookie per
// line, seven tab-separated fields, '#' comments and blank lines
// ignored.
func parseCookieFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expires, _ := strconv.ParseInt(fields[4], 10, 64)
		cookie := &http.Cookie{
			Domain: strings.TrimPrefix(fields[0], "."),
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0)
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	return cookies, nil
}

func newCookieJar(cookies []*http.Cookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	byDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = "youtube.com"
		}
		byDomain[domain] = append(byDomain[domain], c)
	}
	for domain, list := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain}
		jar.SetCookies(u, list)
	}
	return jar, nil
}
