package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Artifact names the bundle loader resolves through the registry.
const (
	ArtifactEncoder        = "encoder"
	ArtifactASRHead        = "asr_head"
	ArtifactASRVocab       = "asr_vocab"
	ArtifactTextClassifier = "text_classifier"
	ArtifactTextVocab      = "text_vocab"
	ArtifactToxicityHead   = "toxicity_head"
)

// EncoderMeta describes the shared encoder's input contract and output width.
type EncoderMeta struct {
	SampleRate  int `yaml:"sample_rate"`
	HiddenSize  int `yaml:"hidden_size"`
	PadMultiple int `yaml:"pad_multiple"`
}

// Metadata identifies a model release and its classification labels.
type Metadata struct {
	Model   string      `yaml:"model"`
	Version string      `yaml:"version"`
	Labels  []string    `yaml:"labels"`
	Encoder EncoderMeta `yaml:"encoder"`
}

// Artifact is one weight file in a release manifest.
type Artifact struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	SHA256 string `yaml:"sha256"`
}

// Manifest is the registry's release descriptor.
type Manifest struct {
	Metadata  `yaml:",inline"`
	Artifacts []Artifact `yaml:"artifacts"`
}

// Resolver turns artifact names into local file paths. Implementations may
// front a remote registry; the bundle loader only sees paths.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Metadata() Metadata
}

// DirResolver serves artifacts from a local directory described by a
// manifest.yaml, verifying SHA-256 digests when the manifest declares them.
type DirResolver struct {
	root     string
	manifest Manifest
	byName   map[string]Artifact
}

// ManifestFile is the release descriptor name inside a model directory.
const ManifestFile = "manifest.yaml"

// OpenDir reads root/manifest.yaml and returns a resolver over root.
func OpenDir(root string) (*DirResolver, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, &LoadError{Stage: "manifest", Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("parse: %w", err)}
	}
	if m.Model == "" || m.Version == "" {
		return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("model name and version are required")}
	}
	if len(m.Artifacts) == 0 {
		return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("no artifacts declared")}
	}

	byName := make(map[string]Artifact, len(m.Artifacts))
	for _, a := range m.Artifacts {
		if a.Name == "" || a.File == "" {
			return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("artifact entries need name and file: %+v", a)}
		}
		if _, dup := byName[a.Name]; dup {
			return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("duplicate artifact %q", a.Name)}
		}
		byName[a.Name] = a
	}
	return &DirResolver{root: root, manifest: m, byName: byName}, nil
}

// Metadata returns the release metadata.
func (r *DirResolver) Metadata() Metadata { return r.manifest.Metadata }

// Resolve returns the verified local path of the named artifact.
func (r *DirResolver) Resolve(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a, ok := r.byName[name]
	if !ok {
		return "", &LoadError{Stage: name, Err: fmt.Errorf("artifact not in manifest")}
	}
	path := filepath.Join(r.root, a.File)
	if a.SHA256 != "" {
		if err := verifySHA256(path, a.SHA256); err != nil {
			return "", &LoadError{Stage: name, Err: err}
		}
	} else if _, err := os.Stat(path); err != nil {
		return "", &LoadError{Stage: name, Err: err}
	}
	return path, nil
}

func verifySHA256(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("digest %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", path, got, want)
	}
	return nil
}
