package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrPDFInfo indicates PDF metadata could not be written.
var ErrPDFInfo = errors.New("failed to write PDF metadata")

// pdfInfoKeys maps metadata keys to standard document information entries.
var pdfInfoKeys = map[string]string{
	"title":     "Title",
	"author":    "Author",
	"subject":   "Subject",
	"keywords":  "Keywords",
	"generator": "Creator",
}

var disableConfigDir sync.Once

// pdfConfig returns a pdfcpu configuration that never touches the user's
// config directory and writes plain cross-reference tables.
func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// SetPDFInfo writes meta into the document information dictionary of pdf.
// Well-known keys become Title, Author, Subject, Keywords and Creator;
// others are stored under their capitalized name. Empty values are ignored
// and pdf is returned as is when nothing remains.
func SetPDFInfo(pdf []byte, meta map[string]string) ([]byte, error) {
	props := make(map[string]string, len(meta))
	for k, v := range meta {
		if v == "" || k == "" {
			continue
		}
		props[pdfInfoKey(k)] = v
	}
	if len(props) == 0 {
		return pdf, nil
	}

	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(pdf), &out, props, pdfConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFInfo, err)
	}
	return out.Bytes(), nil
}

func pdfInfoKey(k string) string {
	if std, ok := pdfInfoKeys[k]; ok {
		return std
	}
	return strings.ToUpper(k[:1]) + k[1:]
}
