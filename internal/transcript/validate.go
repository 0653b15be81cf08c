package transcript

import "strings"

// Validation error classifications surfaced to the workflow driver.
const (
	ErrTypeInvalidExtension = "invalid_extension"
	ErrTypeEmptyContent     = "empty_content"
)

// ValidationResult reports whether a transcript upload is usable and, if
// not, the classification the driver relays to the user.
type ValidationResult struct {
	Valid        bool
	ErrorType    string
	ErrorMessage string
}

// ValidateTranscript checks that an uploaded transcript has a .md
// extension and non-empty content.
func ValidateTranscript(filename, content string) ValidationResult {
	if !strings.HasSuffix(strings.ToLower(filename), ".md") {
		return ValidationResult{
			ErrorType:    ErrTypeInvalidExtension,
			ErrorMessage: "transcript file must have .md extension",
		}
	}
	if strings.TrimSpace(content) == "" {
		return ValidationResult{
			ErrorType:    ErrTypeEmptyContent,
			ErrorMessage: "transcript file cannot be empty",
		}
	}
	return ValidationResult{Valid: true}
}

// ExtractURLs pulls http(s) links out of a message so they can be stored
// as workflow inputs.
func ExtractURLs(text string) []string {
	var urls []string
	for _, field := range strings.Fields(text) {
		trimmed := strings.Trim(field, "<>.,;:!?()")
		if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
