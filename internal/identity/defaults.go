package identity

// DefaultAcceptLanguage matches the audience of the target catalog
const DefaultAcceptLanguage = "es-ES,es;q=0.9,en;q=0.8"

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// Defaults returns the built-in identity pool
func Defaults() []Identity {
	return FromUserAgents(defaultUserAgents)
}

// DefaultUserAgents returns a copy of the built-in user agent strings
func DefaultUserAgents() []string {
	out := make([]string, len(defaultUserAgents))
	copy(out, defaultUserAgents)
	return out
}
