package bank

import (
	"hash/fnv"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

// FormDomain lists the items a form allows for one domain and which of them
// are anchors shared with other forms.
type FormDomain struct {
	Items   []string `json:"items" yaml:"items"`
	Anchors []string `json:"anchors" yaml:"anchors"`
}

type Form map[string]FormDomain

type FormSet struct {
	forms map[string]Form
	ids   []string
}

type formsDocument struct {
	Forms map[string]Form `yaml:"forms"`
}

func LoadForms(path string) (*FormSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read forms %s", path), errors.ErrConfig)
	}
	return ParseForms(data)
}

func ParseForms(data []byte) (*FormSet, error) {
	var doc formsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Code: ConfigErrorMalformed, Cause: err}
	}
	return NewFormSet(doc.Forms), nil
}

func NewFormSet(forms map[string]Form) *FormSet {
	fs := &FormSet{forms: map[string]Form{}}
	for id, f := range forms {
		normalized := make(Form, len(f))
		for d, fd := range f {
			normalized[NormalizeDomain(d)] = fd
		}
		fs.forms[id] = normalized
		fs.ids = append(fs.ids, id)
	}
	sort.Strings(fs.ids)
	return fs
}

// Validate checks every listed id exists in the bank under the form's domain.
func (fs *FormSet) Validate(b *Bank) error {
	for _, id := range fs.ids {
		for domain, fd := range fs.forms[id] {
			if _, err := b.Resolve(domain, fd.Items); err != nil {
				return errors.Wrapf(err, "form %s", id)
			}
			if _, err := b.Resolve(domain, fd.Anchors); err != nil {
				return errors.Wrapf(err, "form %s anchors", id)
			}
		}
	}
	return nil
}

func (fs *FormSet) IDs() []string {
	if fs == nil {
		return nil
	}
	return fs.ids
}

// Assign picks a form from the FNV-1a hash of seed. Returns "" when there are
// no forms.
func (fs *FormSet) Assign(seed string) string {
	if fs == nil || len(fs.ids) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return fs.ids[h.Sum32()%uint32(len(fs.ids))]
}

// AllowedItems returns nil when the form does not restrict the domain.
func (fs *FormSet) AllowedItems(formID, domain string) []string {
	if fs == nil {
		return nil
	}
	fd, ok := fs.forms[formID][NormalizeDomain(domain)]
	if !ok {
		return nil
	}
	return fd.Items
}

func (fs *FormSet) Anchors(formID, domain string) []string {
	if fs == nil {
		return nil
	}
	return fs.forms[formID][NormalizeDomain(domain)].Anchors
}

type FormDomainSummary struct {
	Items   int `json:"items"`
	Anchors int `json:"anchors"`
}

func (fs *FormSet) Describe(formID string) (map[string]FormDomainSummary, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.forms[formID]
	if !ok {
		return nil, false
	}
	out := make(map[string]FormDomainSummary, len(f))
	for d, fd := range f {
		out[d] = FormDomainSummary{Items: len(fd.Items), Anchors: len(fd.Anchors)}
	}
	return out, true
}
