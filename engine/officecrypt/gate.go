// Package officecrypt detects password protected office and PDF documents and checks
// whether a candidate password opens them. Files are only ever opened for reading.
package officecrypt

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/richardlehane/mscfb"
)

// Container kinds recognised from the leading bytes of a file
type container int

const (
	containerUnknown container = iota
	containerPDF
	containerCFB
	containerZip
)

var (
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	pdfMagic = []byte("%PDF-")
)

// Gate answers protection questions about local documents
type Gate struct {
	Logger *slog.Logger
}

// NewGate creates a Gate logging to logger
func NewGate(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{Logger: logger}
}

// IsProtected reports whether path needs a password to be opened.
// Unreadable and unknown files are reported as unprotected.
func (g *Gate) IsProtected(path string) bool {
	switch sniff(path) {
	case containerPDF:
		return pdfProtected(path)
	case containerCFB:
		info, err := inspectCFB(path)
		if err != nil {
			g.Logger.Debug("Unable to inspect compound file", "path", path, "error", err)
			return false
		}
		return info.protected()
	case containerZip:
		return odfProtected(path)
	}
	return false
}

// IsCompatible reports whether credential opens path. An unprotected document is
// always compatible. Encryption schemes that cannot be verified here report false.
func (g *Gate) IsCompatible(path, credential string) bool {
	switch sniff(path) {
	case containerPDF:
		return pdfOpens(path, credential)
	case containerCFB:
		info, err := inspectCFB(path)
		if err != nil {
			g.Logger.Debug("Unable to inspect compound file", "path", path, "error", err)
			return true
		}
		if !info.protected() {
			return true
		}
		if info.encryptionInfo == nil {
			g.Logger.Debug("Legacy encryption cannot be verified", "path", path)
			return false
		}
		ok, err := verifyPassword(info.encryptionInfo, credential)
		if err != nil {
			g.Logger.Debug("Unable to verify password", "path", path, "error", err)
			return false
		}
		return ok
	case containerZip:
		return !odfProtected(path)
	}
	return true
}

func sniff(path string) container {
	f, err := os.Open(path)
	if err != nil {
		return containerUnknown
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, cfbMagic):
		return containerCFB
	case bytes.HasPrefix(head, zipMagic):
		return containerZip
	case bytes.Contains(head, pdfMagic):
		return containerPDF
	}
	return containerUnknown
}

// cfbInfo collects the streams of a compound file that matter for encryption
type cfbInfo struct {
	encryptionInfo   []byte
	encryptedPackage bool
	wordEncrypted    bool
	workbookFilePass bool
	pptEncrypted     bool
}

func (i cfbInfo) protected() bool {
	return (i.encryptionInfo != nil && i.encryptedPackage) || i.wordEncrypted || i.workbookFilePass || i.pptEncrypted
}

func inspectCFB(path string) (cfbInfo, error) {
	var info cfbInfo
	f, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return info, err
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "EncryptionInfo":
			info.encryptionInfo, err = io.ReadAll(entry)
			if err != nil {
				return info, err
			}
		case "EncryptedPackage":
			info.encryptedPackage = true
		case "WordDocument":
			info.wordEncrypted = wordEncrypted(entry)
		case "Workbook", "Book":
			info.workbookFilePass = workbookHasFilePass(entry)
		case "EncryptedSummary":
			info.pptEncrypted = true
		}
	}
	return info, nil
}

// odfProtected checks the manifest of an OpenDocument package for encrypted entries
func odfProtected(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != "META-INF/manifest.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return false
		}
		manifest, err := io.ReadAll(io.LimitReader(rc, 1<<20))
		rc.Close()
		if err != nil {
			return false
		}
		return strings.Contains(string(manifest), "encryption-data")
	}
	return false
}
