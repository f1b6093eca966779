package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dev.rubentxu.devops-platform/gateway/config"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Syncer replica periódicamente al bucket de sincronización los ficheros de
// estado modificados. El mtime del fichero marcador registra la última
// sincronización completada, así que solo se suben los ficheros modificados
// desde entonces.
type Syncer struct {
	cfg      config.SyncConfig
	uploader objectUploader
}

func NewSyncer(ctx context.Context, cfg config.SyncConfig) (*Syncer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Syncer{
		cfg:      cfg,
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
	}, nil
}

// Run sincroniza a intervalo fijo hasta que el contexto se cancela. Un
// ciclo fallido se registra y se reintenta en el siguiente tick; el
// marcador solo avanza tras un ciclo completamente exitoso.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.Printf("syncer: ciclo de sincronización fallido: %v", err)
			}
		}
	}
}

func (s *Syncer) SyncOnce(ctx context.Context) error {
	since := s.lastSync()
	files, err := changedFiles(s.cfg.StateDir, s.cfg.MarkerFile, since)
	if err != nil {
		return fmt.Errorf("scanning state directory: %w", err)
	}
	if len(files) == 0 {
		return s.touchMarker()
	}

	for _, file := range files {
		if err := s.uploadFile(ctx, file); err != nil {
			return err
		}
	}
	log.Printf("syncer: subidos %d fichero(s) modificados", len(files))
	return s.touchMarker()
}

func (s *Syncer) uploadFile(ctx context.Context, path string) error {
	rel, err := filepath.Rel(s.cfg.StateDir, path)
	if err != nil {
		return fmt.Errorf("resolving key for %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	key := filepath.ToSlash(rel)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (s *Syncer) lastSync() time.Time {
	info, err := os.Stat(s.cfg.MarkerFile)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (s *Syncer) touchMarker() error {
	now := time.Now()
	if err := os.Chtimes(s.cfg.MarkerFile, now, now); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.MarkerFile), 0o755); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}
	if err := os.WriteFile(s.cfg.MarkerFile, nil, 0o644); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return nil
}

// changedFiles lista los ficheros regulares bajo root modificados después
// de since. El propio marcador y todo lo que cuelga de logs/ se queda en
// local.
func changedFiles(root, marker string, since time.Time) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if filepath.Base(path) == "logs" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == marker {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(since) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return files, nil
}
