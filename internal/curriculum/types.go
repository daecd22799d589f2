package curriculum

// Class is a course loaded from one YAML document (e.g. Algebra Form 1).
type Class struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Modules     []Module `yaml:"modules" json:"modules"`
}

// Module is an ordered list of submodules.
type Module struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	Submodules []Submodule `yaml:"submodules" json:"submodules"`
}

// Submodule is a lesson: an ordered slide deck.
type Submodule struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Slides []Slide `yaml:"slides" json:"slides"`
}

// Slide types.
const (
	SlideInteractive = "interactive"
	SlideQuestion    = "question"
	SlideStatic      = "static"
)

// Slide is one screen of a lesson.
type Slide struct {
	ID              string     `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title,omitempty"`
	Type            string     `yaml:"type" json:"type"`
	Body            string     `yaml:"body" json:"body,omitempty"`
	PersistResponse bool       `yaml:"persist_response" json:"persist_response"`
	Questions       []Question `yaml:"questions" json:"questions,omitempty"`
}

// Question is an input on a question slide. Its ID is the response field id.
type Question struct {
	ID       string   `yaml:"id" json:"id"`
	Prompt   string   `yaml:"prompt" json:"prompt"`
	Kind     string   `yaml:"kind" json:"kind,omitempty"` // text, choice or multi
	Options  []string `yaml:"options" json:"options,omitempty"`
	Required bool     `yaml:"required" json:"required"`
}

// RequiredFields returns the ids of the slide's required questions.
func (s Slide) RequiredFields() []string {
	var ids []string
	for _, q := range s.Questions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}
