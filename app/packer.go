package app

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/domain/archive"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// Packer turns a batch's downloaded files into size-bounded ZIP parts
// and uploads them to the object store. The split decision is made by
// archive.PlanParts on the pre-compression sizes; a part may compress
// smaller than the ceiling but is never planned larger.
type Packer struct {
	objects ports.ObjectStore
	workDir string
	ceiling int64
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewPacker creates a packer that stages archives under workDir.
func NewPacker(objects ports.ObjectStore, workDir string, ceiling int64, collector *metrics.Collector, logger zerolog.Logger) *Packer {
	if ceiling <= 0 {
		ceiling = archive.DefaultPartCeiling
	}
	return &Packer{
		objects: objects,
		workDir: workDir,
		ceiling: ceiling,
		metrics: collector,
		logger:  logger,
	}
}

// Pack archives the files for a batch and returns one part reference
// per written archive, indexed from 1. Files that vanished between
// download and packing are skipped with a warning rather than failing
// the whole batch.
func (p *Packer) Pack(ctx context.Context, batchID string, files []archive.File) ([]batch.PartRef, error) {
	var present []archive.File
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			p.logger.Warn().
				Str("batch_id", batchID).
				Str("path", f.Path).
				Err(err).
				Msg("skipping missing file during packing")
			continue
		}
		f.Size = info.Size()
		present = append(present, f)
	}

	parts := archive.PlanParts(present, p.ceiling)
	if len(parts) == 0 {
		return nil, nil
	}

	stageDir := filepath.Join(p.workDir, batchID)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	refs := make([]batch.PartRef, 0, len(parts))
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := fmt.Sprintf("%s_part%d.zip", batchID, part.Index)
		localPath := filepath.Join(stageDir, name)

		size, err := p.writeArchive(localPath, part)
		if err != nil {
			return nil, fmt.Errorf("write part %d: %w", part.Index, err)
		}

		ref, err := p.objects.Put(ctx, batchID+"/"+name, localPath)
		if err != nil {
			return nil, fmt.Errorf("upload part %d: %w", part.Index, err)
		}

		if p.metrics != nil {
			p.metrics.ArchiveParts.Inc()
			p.metrics.ArchiveBytes.Add(float64(size))
		}
		p.logger.Info().
			Str("batch_id", batchID).
			Int("part", part.Index).
			Int("files", len(part.Files)).
			Int64("bytes", size).
			Msg("archive part written")

		refs = append(refs, batch.PartRef{Index: part.Index, Ref: ref, Size: size})
	}
	return refs, nil
}

// writeArchive streams the part's files into one ZIP and returns the
// archive's size on disk. Files are streamed, never buffered whole.
func (p *Packer) writeArchive(path string, part archive.Part) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(out)
	for _, f := range part.Files {
		in, err := os.Open(f.Path)
		if err != nil {
			p.logger.Warn().
				Str("path", f.Path).
				Err(err).
				Msg("skipping unreadable file during packing")
			continue
		}
		w, err := zw.Create(f.Name)
		if err != nil {
			in.Close()
			zw.Close()
			out.Close()
			return 0, err
		}
		if _, err := io.Copy(w, in); err != nil {
			in.Close()
			zw.Close()
			out.Close()
			return 0, err
		}
		in.Close()
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
