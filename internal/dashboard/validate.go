package dashboard

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxFolderNameLength caps user-chosen folder names.
const MaxFolderNameLength = 100

var (
	errHasSlash = errors.New("must not contain '/'")
	errHasDot   = errors.New("must not contain '.'")
)

func noSubstring(sub string, err error) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if strings.Contains(s, sub) {
			return err
		}
		return nil
	})
}

// ValidateFolderName checks a folder name. Folders never contain dots,
// which is how the listing tells them apart from files.
func ValidateFolderName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, MaxFolderNameLength),
		noSubstring("/", errHasSlash),
		noSubstring("\\", errHasSlash),
		noSubstring(".", errHasDot),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFolderName, err)
	}
	return nil
}

// ValidateFileName checks a CSV file name inside a folder.
func ValidateFileName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 255),
		noSubstring("/", errHasSlash),
		noSubstring("\\", errHasSlash),
		validation.NotIn(".", ".."),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFileName, err)
	}
	return nil
}

// IsCSV reports whether name has the .csv suffix the dashboard accepts.
func IsCSV(name string) bool {
	return strings.HasSuffix(name, ".csv")
}
