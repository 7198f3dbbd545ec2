package main

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/store"
)

// dbEntry is the archive member holding the database snapshot.
const dbEntry = "quorum.db"

type fileArgs struct {
	path      string
	overwrite bool
}

func parseFileArgs(args []string) (fileArgs, error) {
	var fa fileArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fa, fmt.Errorf("missing value for -f")
			}
			i++
			fa.path = args[i]
		case "-overwrite":
			fa.overwrite = true
		default:
			return fa, fmt.Errorf("unknown flag %s", args[i])
		}
	}
	if fa.path == "" {
		return fa, fmt.Errorf("missing -f flag")
	}
	return fa, nil
}

func runBackup(args []string) error {
	fa, err := parseFileArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: quorum backup -f <output.tar.zst>\n")
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	size, err := backupDatabase(db, fa.path)
	if err != nil {
		return err
	}
	fmt.Printf("Backup complete: %s, %s\n", fa.path, formatSize(size))
	return nil
}

// backupDatabase snapshots the live database with VACUUM INTO and writes it
// to a zstd-compressed tar at out. It returns the archive size.
func backupDatabase(db *store.Store, out string) (int64, error) {
	dir, err := os.MkdirTemp("", "quorum-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, dbEntry)
	if _, err := db.DB().Exec(`VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	slog.Info("database snapshot taken", "path", snapshot)

	if err := writeArchive(out, snapshot); err != nil {
		return 0, err
	}
	info, err := os.Stat(out)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeArchive(out, snapshot string) error {
	src, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	hdr := &tar.Header{
		Name:    dbEntry,
		Mode:    0o600,
		Size:    info.Size(),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}

	// Close explicitly to catch write errors.
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func runRestore(args []string) error {
	fa, err := parseFileArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: quorum restore -f <backup.tar.zst> [-overwrite]\n")
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := restoreDatabase(fa.path, cfg.Store.Path, fa.overwrite); err != nil {
		return err
	}
	fmt.Printf("Restore complete: %s\n", cfg.Store.Path)
	return nil
}

// restoreDatabase extracts the snapshot from archive to dest. The database
// is written next to dest and renamed into place, so a failed restore leaves
// the old file untouched.
func restoreDatabase(archive, dest string, overwrite bool) error {
	if _, err := os.Stat(dest); err == nil && !overwrite {
		return fmt.Errorf("database %s already exists, add -overwrite to replace it", dest)
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("archive has no %s entry", dbEntry)
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Clean(hdr.Name) != dbEntry {
			continue
		}
		return extractTo(tr, dest)
	}
}

func extractTo(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := dest + ".restore"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write database: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close database: %w", err)
	}
	// Stale WAL files would be replayed over the restored snapshot.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dest + suffix)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("move database into place: %w", err)
	}
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
