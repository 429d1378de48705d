package classify

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// Vocabulary maps each design domain to its ordered trigger terms.
// Terms are matched as lowercase substrings of the problem text.
type Vocabulary map[domain.DomainTag][]string

// DefaultVocabulary returns the built-in trigger vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		domain.DomainCompute: {
			"compute", "server", "instance", "cpu", "memory", "processing", "application",
			"api", "service", "microservice", "container", "docker", "kubernetes",
			"lambda", "function", "serverless", "ec2", "ecs", "eks", "fargate",
		},
		domain.DomainNetwork: {
			"network", "vpc", "subnet", "security group", "load balancer", "dns",
			"cdn", "cloudfront", "route53", "vpn", "direct connect", "nat",
			"firewall", "routing", "bandwidth", "latency", "connectivity",
		},
		domain.DomainStorage: {
			"store", "storage", "data", "file", "backup", "archive", "s3", "bucket",
			"volume", "disk", "nas", "filesystem", "object storage", "block storage",
			"retention", "lifecycle", "cold storage", "hot storage",
		},
		domain.DomainDatabase: {
			"database", "db", "sql", "nosql", "query", "table", "index", "transaction",
			"rds", "dynamodb", "postgres", "mysql", "oracle", "sql server", "mongodb",
			"redis", "cache", "data warehouse", "analytics", "reporting",
		},
	}
}

// vocabularyFile is the on-disk YAML shape.
type vocabularyFile struct {
	Domains map[string][]string `yaml:"domains"`
}

// ParseVocabulary decodes a YAML trigger vocabulary and validates it.
// The file fully replaces the built-in vocabulary: every design domain must
// be present with at least one term. Terms are normalized to trimmed
// lowercase with duplicates dropped, preserving first-occurrence order.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var vf vocabularyFile
	if err := dec.Decode(&vf); err != nil {
		return nil, domain.WrapEngineError(domain.ErrVocabInvalid.Code, "parse vocabulary", err)
	}

	var problems []string
	known := make(map[domain.DomainTag]bool)
	for _, d := range domain.AllDomains() {
		known[d] = true
	}

	vocab := make(Vocabulary, len(vf.Domains))
	for name, terms := range vf.Domains {
		d := domain.DomainTag(name)
		if !known[d] {
			problems = append(problems, fmt.Sprintf("unknown domain %q", name))
			continue
		}
		normalized := normalizeTerms(terms)
		if len(normalized) == 0 {
			problems = append(problems, fmt.Sprintf("domain %q has no usable terms", name))
			continue
		}
		vocab[d] = normalized
	}
	for _, d := range domain.AllDomains() {
		if _, ok := vocab[d]; !ok {
			problems = append(problems, fmt.Sprintf("domain %q is missing", d))
		}
	}

	if len(problems) > 0 {
		return nil, domain.NewEngineError(
			domain.ErrVocabInvalid.Code,
			fmt.Sprintf("%s: %s", domain.ErrVocabInvalid.Message, strings.Join(problems, "; ")),
		)
	}
	return vocab, nil
}

// LoadVocabulary reads a trigger vocabulary from a YAML file.
// An empty path returns the built-in defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
