// Package content holds the site's data: role labels, the project gallery and
// skill categories. A default set is embedded; CONTENT_PATH overrides it.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.io/infrasutra/portfolio/internal/roles"
)

//go:embed content.yaml
var defaultContent []byte

type Project struct {
	Title       string   `yaml:"title" json:"title"`
	Year        string   `yaml:"year" json:"year"`
	Badge       string   `yaml:"badge" json:"badge"`
	Description string   `yaml:"description" json:"description"`
	Image       string   `yaml:"image" json:"image"`
	Tags        []string `yaml:"tags" json:"tags"`
	Duration    string   `yaml:"duration" json:"duration"`
	Client      string   `yaml:"client" json:"client"`
}

type Skill struct {
	Name  string `yaml:"name" json:"name"`
	Level int    `yaml:"level" json:"level"`
}

type SkillCategory struct {
	Title  string  `yaml:"title" json:"title"`
	Icon   string  `yaml:"icon" json:"icon"`
	Skills []Skill `yaml:"skills" json:"skills"`
}

type Site struct {
	Roles        []roles.Entry   `yaml:"roles" json:"roles"`
	Projects     []Project       `yaml:"projects" json:"projects"`
	Skills       []SkillCategory `yaml:"skills" json:"skills"`
	Competencies []string        `yaml:"competencies" json:"competencies"`
}

// Load reads the site content from path, or the embedded default when path is
// empty.
func Load(path string) (*Site, error) {
	if path == "" {
		return Parse(defaultContent)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", path, err)
	}
	site, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return site, nil
}

func Default() *Site {
	site, err := Parse(defaultContent)
	if err != nil {
		panic(err)
	}
	return site
}

func Parse(data []byte) (*Site, error) {
	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if err := site.Validate(); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Site) Validate() error {
	if len(s.Roles) == 0 {
		return roles.ErrNoEntries
	}
	for i, r := range s.Roles {
		if r.Primary == "" || r.Localized == "" {
			return fmt.Errorf("role %d: primary and localized labels are required", i)
		}
	}
	for i, p := range s.Projects {
		if p.Title == "" {
			return fmt.Errorf("project %d: title is required", i)
		}
	}
	for _, c := range s.Skills {
		for _, sk := range c.Skills {
			if sk.Level < 0 || sk.Level > 100 {
				return fmt.Errorf("skill %q in %q: level %d out of range 0..100", sk.Name, c.Title, sk.Level)
			}
		}
	}
	return nil
}

// Card is a project as the gallery renders it.
type Card struct {
	Project
	Position       int    `json:"position"`
	AnimationDelay string `json:"animationDelay"`
}

// Gallery lays projects out as cards. The i-th card (from zero) fades in
// 0.2s + i*0.1s after the section appears; offset is added to i so a paged
// listing keeps the delays of the full gallery.
func Gallery(projects []Project, offset int) []Card {
	cards := make([]Card, 0, len(projects))
	for i, p := range projects {
		pos := offset + i
		cards = append(cards, Card{
			Project:        p,
			Position:       pos,
			AnimationDelay: delay(pos),
		})
	}
	return cards
}

// delay works in tenths of a second so the output has no float noise.
func delay(pos int) string {
	tenths := 2 + pos
	return strconv.FormatFloat(float64(tenths)/10, 'f', -1, 64) + "s"
}
