package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afilmory/builder/interfaces"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubBackend implements a storage provider on top of a GitHub repository.
// Objects are files on a branch; writes become commits and require a token.
// Without a token the backend is read-only.
type GitHubBackend struct {
	owner       string
	repo        string
	branch      string
	prefix      string
	token       string
	baseURL     string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// gitHubTree is the recursive tree listing returned by the git trees API.
type gitHubTree struct {
	SHA  string `json:"sha"`
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// gitHubContent is the metadata form of the contents API response.
type gitHubContent struct {
	SHA  string `json:"sha"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// NewGitHubBackend creates a new GitHub storage backend.
func NewGitHubBackend(cfg interfaces.StorageConfig, log *slog.Logger) *GitHubBackend {
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGitHubAPI
	}

	return &GitHubBackend{
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		branch:      branch,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		token:       cfg.Token,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("github://%s/%s?branch=%s", cfg.Owner, cfg.Repo, branch),
	}
}

func newGitHubProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("%w: github provider requires owner and repo", interfaces.ErrInvalidStorageConfig)
	}
	return NewGitHubBackend(cfg, log), nil
}

// Get downloads the raw file content at key from the configured branch.
func (b *GitHubBackend) Get(ctx context.Context, key string) ([]byte, error) {
	repoPath, err := b.repoPath(key)
	if err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, http.MethodGet, b.contentsURL(repoPath, true), nil, "application/vnd.github.raw")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, b.apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	b.log.Debug("Fetched content from GitHub",
		slog.String("path", repoPath),
		slog.Int("size", len(data)))

	return data, nil
}

// List returns the blobs of the branch tree below prefix. The blob SHA is used as ETag.
func (b *GitHubBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		b.baseURL, b.owner, b.repo, url.PathEscape(b.branch))

	resp, err := b.do(ctx, http.MethodGet, treeURL, nil, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Empty repositories have no tree yet
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, b.apiError(resp)
	}

	var tree gitHubTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if tree.Truncated {
		b.log.Warn("GitHub tree listing truncated",
			slog.String("repo", b.owner+"/"+b.repo),
			slog.Int("entries", len(tree.Tree)))
	}

	fullPrefix := joinPrefix(b.prefix, prefix)
	var objects []interfaces.ObjectInfo
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !strings.HasPrefix(entry.Path, fullPrefix) {
			continue
		}
		if b.prefix != "" && !strings.HasPrefix(entry.Path, b.prefix+"/") {
			continue
		}
		objects = append(objects, interfaces.ObjectInfo{
			Key:  trimPrefix(b.prefix, entry.Path),
			Size: entry.Size,
			ETag: entry.SHA,
		})
	}

	sortObjects(objects)
	return objects, nil
}

// Put commits data to key on the configured branch.
func (b *GitHubBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b.token == "" {
		return interfaces.ErrReadOnlyProvider
	}
	repoPath, err := b.repoPath(key)
	if err != nil {
		return err
	}

	sha, err := b.fileSHA(ctx, repoPath)
	if err != nil {
		return err
	}

	body := map[string]string{
		"message": fmt.Sprintf("Update %s", repoPath),
		"content": base64.StdEncoding.EncodeToString(data),
		"branch":  b.branch,
	}
	if sha != "" {
		body["sha"] = sha
	}

	resp, err := b.doJSON(ctx, http.MethodPut, b.contentsURL(repoPath, false), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return b.apiError(resp)
	}

	b.log.Debug("Committed content to GitHub",
		slog.String("path", repoPath),
		slog.Int("size", len(data)))

	return nil
}

// Delete commits the removal of key.
func (b *GitHubBackend) Delete(ctx context.Context, key string) error {
	if b.token == "" {
		return interfaces.ErrReadOnlyProvider
	}
	repoPath, err := b.repoPath(key)
	if err != nil {
		return err
	}

	sha, err := b.fileSHA(ctx, repoPath)
	if err != nil {
		return err
	}
	if sha == "" {
		return nil
	}

	resp, err := b.doJSON(ctx, http.MethodDelete, b.contentsURL(repoPath, false), map[string]string{
		"message": fmt.Sprintf("Delete %s", repoPath),
		"sha":     sha,
		"branch":  b.branch,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return b.apiError(resp)
	}
	return nil
}

// Available checks if the GitHub repository is accessible.
func (b *GitHubBackend) Available(ctx context.Context) bool {
	repoURL := fmt.Sprintf("%s/repos/%s/%s", b.baseURL, b.owner, b.repo)

	resp, err := b.do(ctx, http.MethodGet, repoURL, nil, "application/vnd.github+json")
	if err != nil {
		b.log.Debug("GitHub backend unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.log.Debug("GitHub backend unavailable",
			slog.String("status", resp.Status))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *GitHubBackend) Name() string {
	return fmt.Sprintf("github-%s-%s", b.owner, b.repo)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *GitHubBackend) LocationURI() string {
	return b.locationURI
}

// fileSHA returns the blob SHA of an existing file, or "" if it doesn't exist.
func (b *GitHubBackend) fileSHA(ctx context.Context, repoPath string) (string, error) {
	resp, err := b.do(ctx, http.MethodGet, b.contentsURL(repoPath, true), nil, "application/vnd.github+json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", b.apiError(resp)
	}

	var content gitHubContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("failed to decode content metadata: %w", err)
	}
	return content.SHA, nil
}

func (b *GitHubBackend) contentsURL(repoPath string, withRef bool) string {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", b.baseURL, b.owner, b.repo, repoPath)
	if withRef {
		u += "?ref=" + url.QueryEscape(b.branch)
	}
	return u
}

func (b *GitHubBackend) repoPath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return joinPrefix(b.prefix, cleaned), nil
}

func (b *GitHubBackend) doJSON(ctx context.Context, method, u string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return b.do(ctx, method, u, bytes.NewReader(payload), "application/vnd.github+json")
}

func (b *GitHubBackend) do(ctx context.Context, method, u string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

func (b *GitHubBackend) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("GitHub API error: %s, %s", resp.Status, strings.TrimSpace(string(body)))
}
