package model

// ContentType categorizes what kind of content a task asks for.
type ContentType string

const (
	ContentTypeBlogIntro    ContentType = "blog_intro"
	ContentTypeLinkedIn     ContentType = "linkedin"
	ContentTypeAnnouncement ContentType = "announcement"
)

// Task is one content brief from the static catalog. The catalog is loaded
// once at startup and treated as read-only for the life of the process.
type Task struct {
	ID               string      `json:"id" yaml:"id"`
	ContentType      ContentType `json:"content_type" yaml:"content_type"`
	Title            string      `json:"title" yaml:"title"`
	Brief            string      `json:"brief" yaml:"brief"`
	StructuredPrompt string      `json:"structured_prompt" yaml:"structured_prompt"`
	ExampleTemplate  string      `json:"example_template" yaml:"example_template"`
}
