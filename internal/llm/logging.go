package llm

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

const logSnippetLimit = 120

// secretParams are query parameters that must never reach the logs.
var secretParams = []string{"webhook_secret", "token"}

func jobLogger(ctx context.Context, provider, modelRef string) *logrus.Entry {
	fields := logrus.Fields{"provider": provider}
	if ref := strings.TrimSpace(modelRef); ref != "" {
		fields["model_ref"] = ref
	}
	entry := logrus.WithFields(fields)
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

// redactURL masks credentials carried in the query string, such as the training webhook secret.
func redactURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.RawQuery == "" {
		return logSnippet(raw)
	}
	query := parsed.Query()
	for _, name := range secretParams {
		if query.Has(name) {
			query.Set(name, "REDACTED")
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func logSnippet(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= logSnippetLimit {
		return value
	}
	return string(runes[:logSnippetLimit]) + "..."
}
