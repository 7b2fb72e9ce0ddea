// Package gitrepo keeps a git repository per module recording every saved
// draft as a commit on main. The history backs the revisions API; the
// upstream stores remain the source of truth for current state.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"trellis/api/internal/entity"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Content is the editable half of a module as persisted per revision.
type Content struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	ImageURL    string             `json:"image_url,omitempty"`
	VideoURL    string             `json:"video_url,omitempty"`
	Status      string             `json:"status"`
	SLTs        []entity.SLT       `json:"slts,omitempty"`
	Assignment  *entity.Assignment `json:"assignment,omitempty"`
	Intro       *entity.Intro      `json:"intro,omitempty"`
	Lessons     []entity.Lesson    `json:"lessons,omitempty"`
}

// ContentFromModule projects the canonical module onto its revisioned form.
func ContentFromModule(m entity.Module) Content {
	return Content{
		Title:       m.Title,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		VideoURL:    m.VideoURL,
		Status:      m.Status,
		SLTs:        m.SLTs,
		Assignment:  m.Assignment,
		Intro:       m.Intro,
		Lessons:     m.Lessons,
	}
}

// CommitInfo describes one revision.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrRepoNotFound reports that no revision history exists for a module yet.
var ErrRepoNotFound = errors.New("module repository not found")

// contentFile is the single tracked file in every module repository.
const contentFile = "content.json"

// Service owns the tree of per-module repositories under baseDir. Every
// operation holds that module's lock for its whole duration, so concurrent
// saves serialize instead of corrupting the worktree.
type Service struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Service rooted at baseDir. Repositories are created lazily,
// on the first save of each module.
func New(baseDir string) *Service {
	return &Service{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}
}

// EnsureModuleRepo initializes the repository for a module with a baseline
// commit. Calling it for an existing repository is a no-op.
func (s *Service) EnsureModuleRepo(moduleID string, initial Content, author string) error {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(moduleID)
	switch _, err := os.Stat(path); {
	case err == nil:
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat repo path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	if err := writeContentFile(path, initial); err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return fmt.Errorf("stage baseline: %w", err)
	}
	hash, err := worktree.Commit("Import module baseline", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit baseline: %w", err)
	}

	// go-git leaves HEAD on its own default branch name; pin main and HEAD
	// so every later operation resolves the same ref.
	main := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(main, hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, main)); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSave records one saved draft. Saves that change nothing still
// commit, so the history matches the save audit log one to one.
func (s *Service) CommitSave(moduleID string, content Content, author, message string) (CommitInfo, error) {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return CommitInfo{}, err
	}

	hash, err := s.commit(repo, content, author, message)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toCommitInfo(commitObj), nil
}

func (s *Service) GetHeadContent(moduleID string) (Content, CommitInfo, error) {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}

	ref, err := mainHead(repo)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

func (s *Service) GetContentByHash(moduleID, hash string) (Content, error) {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return Content{}, err
	}

	commitObj, err := commitAt(repo, hash)
	if err != nil {
		return Content{}, err
	}
	return readContentFromCommit(commitObj)
}

func (s *Service) GetCommitByHash(moduleID, hash string) (CommitInfo, error) {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := commitAt(repo, hash)
	if err != nil {
		return CommitInfo{}, err
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) History(moduleID string, limit int) ([]CommitInfo, error) {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return nil, err
	}

	ref, err := mainHead(repo)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	// io.EOF stops the walk once limit commits are collected; it is not a
	// real failure.
	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// TagRevision marks a revision, typically the commit of a save that took
// the module to APPROVED. Tagging the same name twice is a no-op.
func (s *Service) TagRevision(moduleID, hash, name string) error {
	lock := s.moduleLock(moduleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(moduleID)
	if err != nil {
		return err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Trellis",
			Email: "trellis@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(moduleID string) string {
	return filepath.Join(s.baseDir, moduleID)
}

// open resolves the per-module repository, distinguishing "never saved"
// from genuine storage failures.
func (s *Service) open(moduleID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(moduleID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("module %s: %w", moduleID, ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) moduleLock(moduleID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.locks[moduleID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[moduleID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	if err := checkoutMain(repo); err != nil {
		return plumbing.ZeroHash, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := writeContentFile(worktree.Filesystem.Root(), content); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func checkoutMain(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	mainRef := plumbing.NewBranchReferenceName("main")
	if _, err := repo.Reference(mainRef, true); err != nil {
		return fmt.Errorf("resolve main: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: mainRef, Force: true}); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	return nil
}

// writeContentFile renders content as indented JSON into the worktree.
func writeContentFile(root string, content Content) error {
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, contentFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", contentFile, err)
	}
	return nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// DiffFields lists the fields that differ between two revisions, sorted by
// field name. Scalar fields carry before/after values; structured children
// are summarized, since their JSON bodies are too bulky for a diff listing.
func DiffFields(from, to Content) []map[string]string {
	changes := make([]map[string]string, 0)
	scalar := func(field, before, after string) {
		if before != after {
			changes = append(changes, map[string]string{
				"field": field, "before": before, "after": after,
			})
		}
	}
	structured := func(field string, before, after any) {
		if !bytes.Equal(marshalChild(before), marshalChild(after)) {
			changes = append(changes, map[string]string{
				"field": field, "before": "[structured content]", "after": "[structured content]",
			})
		}
	}

	scalar("title", from.Title, to.Title)
	scalar("description", from.Description, to.Description)
	scalar("image_url", from.ImageURL, to.ImageURL)
	scalar("video_url", from.VideoURL, to.VideoURL)
	scalar("status", from.Status, to.Status)
	scalar("slts", sltLine(from.SLTs), sltLine(to.SLTs))
	structured("assignment", from.Assignment, to.Assignment)
	structured("intro", from.Intro, to.Intro)
	structured("lessons", from.Lessons, to.Lessons)

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i]["field"] < changes[j]["field"]
	})
	return changes
}

func HasChanges(from, to Content) bool {
	return len(DiffFields(from, to)) > 0
}

func sltLine(slts []entity.SLT) string {
	texts := make([]string, 0, len(slts))
	for _, s := range slts {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, " | ")
}

func marshalChild(v any) []byte {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return encoded
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.trellis.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	cleaned := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			cleaned = append(cleaned, '.')
		}
	}
	if len(cleaned) == 0 {
		return "user"
	}
	return string(cleaned)
}

// mainHead resolves the tip of main. Module repositories pin HEAD to main
// at creation, so a missing ref means the repo is corrupt.
func mainHead(repo *git.Repository) (*plumbing.Reference, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	return ref, nil
}

// commitAt loads the commit object behind a full or abbreviated hash.
func commitAt(repo *git.Repository, hash string) (*object.Commit, error) {
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commitObj, nil
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	// Full hashes skip the revision walk; anything shorter goes through
	// go-git's resolver so short hashes work too.
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	rev, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *rev, nil
}
