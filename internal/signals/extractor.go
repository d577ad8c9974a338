package signals

import (
	"strings"
)

type InternshipType string

const (
	InternshipNone       InternshipType = ""
	InternshipInternship InternshipType = "internship"
	InternshipIndustry   InternshipType = "industry experience"
)

// LowConfidenceLength is the extracted-text length below which a document
// is likely image-based or poorly scanned.
const LowConfidenceLength = 200

// SkillKeywords is the closed vocabulary matched against extracted text.
// Matching is a plain case-insensitive substring test, so short keywords
// also match inside longer words ("Java" in "JavaScript", "Go" in "Google").
var SkillKeywords = []string{
	"AWS", "Azure", "GCP", "Google Cloud", "Cloud Computing", "Docker", "Kubernetes", "Terraform",
	"Ansible", "CI/CD", "Jenkins", "GitHub Actions", "CloudFormation", "Python", "Java", "JavaScript",
	"TypeScript", "C++", "C#", "Go", "Ruby", "PHP", "Swift", "React", "Angular", "Vue", "Next.js", "Nuxt.js",
	"Spring Boot", "Django", "Flask", "Express", "SQL", "MySQL", "PostgreSQL", "NoSQL", "MongoDB", "DynamoDB",
	"Redis", "Elasticsearch", "Machine Learning", "Deep Learning", "TensorFlow", "Keras", "PyTorch",
	"Scikit-learn", "Pandas", "NumPy", "Data Science", "NLP", "Computer Vision", "Git", "GitHub", "Bitbucket",
	"Linux", "Networking", "REST API", "GraphQL", "Microservices", "Agile", "Scrum",
}

// Set holds the facts extracted from a piece of text.
type Set struct {
	Skills             []string       `json:"skills"`
	ProjectDetected    bool           `json:"project_detected"`
	InternshipDetected bool           `json:"internship_detected"`
	InternshipType     InternshipType `json:"internship_type,omitempty"`
	CertificationCount int            `json:"certifications_count"`
	LowConfidence      bool           `json:"-"`
}

// Extract runs every text signal over text. It never fails; empty input
// yields an empty set flagged as low confidence.
func Extract(text string) Set {
	lower := strings.ToLower(text)

	set := Set{
		Skills:             MatchSkills(text),
		ProjectDetected:    strings.Contains(lower, "project"),
		CertificationCount: strings.Count(lower, "certificate") + strings.Count(lower, "certification"),
		LowConfidence:      len(text) < LowConfidenceLength,
	}

	switch {
	case strings.Contains(lower, "internship"):
		set.InternshipDetected = true
		set.InternshipType = InternshipInternship
	case strings.Contains(lower, "industry experience"):
		set.InternshipDetected = true
		set.InternshipType = InternshipIndustry
	}

	return set
}

// MatchSkills returns the vocabulary keywords found in text, in vocabulary
// order and without duplicates.
func MatchSkills(text string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]struct{}, len(SkillKeywords))
	skills := make([]string, 0)
	for _, skill := range SkillKeywords {
		if _, ok := seen[skill]; ok {
			continue
		}
		if strings.Contains(lower, strings.ToLower(skill)) {
			seen[skill] = struct{}{}
			skills = append(skills, skill)
		}
	}

	return skills
}

// IsKnownSkill reports whether skill belongs to the vocabulary.
func IsKnownSkill(skill string) bool {
	for _, s := range SkillKeywords {
		if s == skill {
			return true
		}
	}
	return false
}
