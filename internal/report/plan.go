package report

// SectionName identifies one section of the assembled report.
type SectionName string

// Section names in their fixed output order.
const (
	SectionCover   SectionName = "cover"
	SectionHistory SectionName = "history"
	SectionTOC     SectionName = "toc"
	SectionBody    SectionName = "body"
)

// sectionOrder is the only order sections are ever emitted in.
var sectionOrder = []SectionName{SectionCover, SectionHistory, SectionTOC, SectionBody}

// Section is one rendered PDF section.
type Section struct {
	Name SectionName
	PDF  []byte
}

// AssemblyPlan is the set of sections to merge. It holds at most one of each
// optional section and exactly one body.
type AssemblyPlan struct {
	sections map[SectionName][]byte
}

// NewAssemblyPlan starts a plan around the mandatory body section.
func NewAssemblyPlan(body []byte) *AssemblyPlan {
	return &AssemblyPlan{
		sections: map[SectionName][]byte{SectionBody: body},
	}
}

// With adds or replaces an optional section. Empty buffers and the body name
// are ignored so an absent section is never represented as a placeholder.
func (p *AssemblyPlan) With(name SectionName, pdf []byte) *AssemblyPlan {
	if name == SectionBody || len(pdf) == 0 {
		return p
	}
	if _, known := sectionIndex(name); !known {
		return p
	}
	p.sections[name] = pdf
	return p
}

// Has reports whether the plan carries the named section.
func (p *AssemblyPlan) Has(name SectionName) bool {
	_, ok := p.sections[name]
	return ok
}

// Body returns the body section bytes.
func (p *AssemblyPlan) Body() []byte {
	return p.sections[SectionBody]
}

// Sections returns the present sections in cover, history, toc, body order.
func (p *AssemblyPlan) Sections() []Section {
	out := make([]Section, 0, len(p.sections))
	for _, name := range sectionOrder {
		if pdf, ok := p.sections[name]; ok {
			out = append(out, Section{Name: name, PDF: pdf})
		}
	}
	return out
}

// Names returns the present section names in output order.
func (p *AssemblyPlan) Names() []SectionName {
	sections := p.Sections()
	names := make([]SectionName, len(sections))
	for i, s := range sections {
		names[i] = s.Name
	}
	return names
}

func sectionIndex(name SectionName) (int, bool) {
	for i, n := range sectionOrder {
		if n == name {
			return i, true
		}
	}
	return -1, false
}
