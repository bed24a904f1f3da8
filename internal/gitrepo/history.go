package gitrepo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/models"
)

// Head returns the commit HEAD points to.
func Head(repoPath string) (models.Commit, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return models.Commit{}, fmt.Errorf("gitrepo: open repository: %w", err)
	}
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return models.Commit{}, fmt.Errorf("gitrepo: head: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return models.Commit{}, fmt.Errorf("gitrepo: head: %w", err)
	}
	c, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return models.Commit{}, fmt.Errorf("gitrepo: head commit: %w", err)
	}
	return toCommit(c), nil
}

// FileHistory lists the commits reachable from HEAD that touched relPath,
// newest first. limit <= 0 returns all of them.
func FileHistory(repoPath, relPath string, limit int) ([]models.Commit, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open repository: %w", err)
	}
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []models.Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gitrepo: head: %w", err)
	}

	name := relPath
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("gitrepo: log %s: %w", relPath, err)
	}
	defer iter.Close()

	commits := []models.Commit{}
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, toCommit(c))
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitrepo: log %s: %w", relPath, err)
	}
	return commits, nil
}

func toCommit(c *object.Commit) models.Commit {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return models.Commit{
		Hash:    c.Hash.String(),
		Subject: subject,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}
