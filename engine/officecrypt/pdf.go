package officecrypt

import (
	"errors"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfConfig returns a relaxed validation configuration using password for both roles
func pdfConfig(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

func pdfProtected(path string) bool {
	return IsWrongPassword(api.ValidateFile(path, pdfConfig("")))
}

func pdfOpens(path, password string) bool {
	return !IsWrongPassword(api.ValidateFile(path, pdfConfig(password)))
}

// IsWrongPassword reports whether a pdfcpu error means the password did not open the file.
// Some pdfcpu code paths only report the condition in the message.
func IsWrongPassword(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pdfcpu.ErrWrongPassword) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "password")
}
