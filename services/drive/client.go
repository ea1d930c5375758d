// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package drive is the document-store service: evidence files live in a
// Google Drive folder tree, and this service is the only component allowed
// to touch it.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// FileMeta is the subset of Drive file metadata the fabric cares about.
type FileMeta struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mime_type"`
	Parents      []string `json:"parents,omitempty"`
	Size         int64    `json:"size,omitempty"`
	ModifiedTime string   `json:"modified_time,omitempty"`
}

// ListQuery narrows a folder listing.
type ListQuery struct {
	FolderID string `json:"folder_id,omitempty"`
	Query    string `json:"query,omitempty"`
	PageSize int64  `json:"page_size,omitempty"`
}

// CreateSpec describes a file to create.
type CreateSpec struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Content  string `json:"content,omitempty"`
}

// UpdateSpec carries the mutable metadata fields.
type UpdateSpec struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Client is the Drive operations surface.
type Client interface {
	List(ctx context.Context, q ListQuery) ([]FileMeta, error)
	Info(ctx context.Context, fileID string) (FileMeta, error)
	Download(ctx context.Context, fileID string) ([]byte, string, error)
	Export(ctx context.Context, fileID, mimeType string) ([]byte, error)
	Create(ctx context.Context, spec CreateSpec) (FileMeta, error)
	Update(ctx context.Context, fileID string, spec UpdateSpec) (FileMeta, error)
	Move(ctx context.Context, fileID, destFolderID string) (FileMeta, error)
	Copy(ctx context.Context, fileID, name string) (FileMeta, error)
	Delete(ctx context.Context, fileID string) error
}

const fileFields = "id, name, mimeType, parents, size, modifiedTime"

// googleClient implements Client against the Drive v3 API.
type googleClient struct {
	svc *driveapi.Service
}

// NewGoogleClient builds a Drive client from a service-account key file.
func NewGoogleClient(ctx context.Context, credentialsFile string) (Client, error) {
	if credentialsFile == "" {
		return nil, faults.Unauthenticated("no Drive credentials configured")
	}
	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		return nil, faults.Unauthenticated(
			fmt.Sprintf("Drive credentials not found at %s", credentialsFile))
	}

	svc, err := driveapi.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, faults.Internal("creating Drive client", err)
	}
	return &googleClient{svc: svc}, nil
}

var _ Client = (*googleClient)(nil)

func (g *googleClient) List(ctx context.Context, q ListQuery) ([]FileMeta, error) {
	call := g.svc.Files.List().
		Fields(googleapi.Field("files(" + fileFields + ")")).
		Context(ctx)

	clauses := []string{"trashed = false"}
	if q.FolderID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", q.FolderID))
	}
	if q.Query != "" {
		clauses = append(clauses, q.Query)
	}
	call = call.Q(strings.Join(clauses, " and "))
	if q.PageSize > 0 {
		call = call.PageSize(q.PageSize)
	}

	list, err := call.Do()
	if err != nil {
		return nil, translateDriveError("listing files", err)
	}
	files := make([]FileMeta, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, metaFrom(f))
	}
	return files, nil
}

func (g *googleClient) Info(ctx context.Context, fileID string) (FileMeta, error) {
	f, err := g.svc.Files.Get(fileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return FileMeta{}, translateDriveError("fetching file "+fileID, err)
	}
	return metaFrom(f), nil
}

func (g *googleClient) Download(ctx context.Context, fileID string) ([]byte, string, error) {
	meta, err := g.Info(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	resp, err := g.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, "", translateDriveError("downloading file "+fileID, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", faults.Transient("reading Drive download", err)
	}
	return body, meta.MimeType, nil
}

func (g *googleClient) Export(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	resp, err := g.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, translateDriveError("exporting file "+fileID, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transient("reading Drive export", err)
	}
	return body, nil
}

func (g *googleClient) Create(ctx context.Context, spec CreateSpec) (FileMeta, error) {
	file := &driveapi.File{Name: spec.Name, MimeType: spec.MimeType}
	if spec.ParentID != "" {
		file.Parents = []string{spec.ParentID}
	}
	call := g.svc.Files.Create(file).Fields(fileFields).Context(ctx)
	if spec.Content != "" {
		call = call.Media(strings.NewReader(spec.Content))
	}
	created, err := call.Do()
	if err != nil {
		return FileMeta{}, translateDriveError("creating file "+spec.Name, err)
	}
	return metaFrom(created), nil
}

func (g *googleClient) Update(ctx context.Context, fileID string, spec UpdateSpec) (FileMeta, error) {
	file := &driveapi.File{Name: spec.Name, Description: spec.Description}
	updated, err := g.svc.Files.Update(fileID, file).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return FileMeta{}, translateDriveError("updating file "+fileID, err)
	}
	return metaFrom(updated), nil
}

// Move replaces every current parent with the destination folder.
func (g *googleClient) Move(ctx context.Context, fileID, destFolderID string) (FileMeta, error) {
	current, err := g.Info(ctx, fileID)
	if err != nil {
		return FileMeta{}, err
	}
	moved, err := g.svc.Files.Update(fileID, nil).
		AddParents(destFolderID).
		RemoveParents(strings.Join(current.Parents, ",")).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return FileMeta{}, translateDriveError("moving file "+fileID, err)
	}
	return metaFrom(moved), nil
}

func (g *googleClient) Copy(ctx context.Context, fileID, name string) (FileMeta, error) {
	var file *driveapi.File
	if name != "" {
		file = &driveapi.File{Name: name}
	}
	copied, err := g.svc.Files.Copy(fileID, file).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return FileMeta{}, translateDriveError("copying file "+fileID, err)
	}
	return metaFrom(copied), nil
}

func (g *googleClient) Delete(ctx context.Context, fileID string) error {
	if err := g.svc.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return translateDriveError("deleting file "+fileID, err)
	}
	return nil
}

func metaFrom(f *driveapi.File) FileMeta {
	return FileMeta{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
	}
}

// translateDriveError folds googleapi errors into the fabric taxonomy.
func translateDriveError(action string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return faults.Unauthenticated("Drive rejected credentials while " + action)
		case gerr.Code == 403:
			return faults.Forbidden("Drive refused " + action)
		case gerr.Code == 404:
			return faults.NotFound("file")
		case gerr.Code == 429 || gerr.Code >= 500:
			return faults.Transient(fmt.Sprintf("Drive returned %d while %s", gerr.Code, action), err)
		default:
			return faults.Internal(action, err)
		}
	}
	return faults.Transient("Drive unreachable while "+action, err)
}
