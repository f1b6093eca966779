package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Prefijos de estado replicados entre el bucket y el directorio de estado.
var statePrefixes = []string{"config/", "workspace/", "skills/"}

type objectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type objectDownloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// Restorer repuebla el directorio de estado desde el bucket de
// sincronización en el primer arranque de un sandbox nuevo.
type Restorer struct {
	bucket     string
	stateDir   string
	client     objectLister
	downloader objectDownloader
}

func NewRestorer(ctx context.Context, bucket, region, stateDir string) (*Restorer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Restorer{
		bucket:     bucket,
		stateDir:   stateDir,
		client:     client,
		downloader: manager.NewDownloader(client),
	}, nil
}

// Restore descarga los prefijos replicados al directorio de estado. Un
// directorio de estado que ya tiene fichero de configuración se presume al
// día y no se toca, de modo que los reinicios de un sandbox inicializado se
// saltan la descarga.
func (r *Restorer) Restore(ctx context.Context, configFile string) error {
	if _, err := os.Stat(configFile); err == nil {
		log.Printf("syncer: %s existe, se omite la restauración", configFile)
		return nil
	}

	for _, prefix := range statePrefixes {
		if err := r.restorePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("restoring prefix %s: %w", prefix, err)
		}
	}
	return nil
}

func (r *Restorer) restorePrefix(ctx context.Context, prefix string) error {
	var token *string
	for {
		page, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", r.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if err := r.restoreObject(ctx, key); err != nil {
				return err
			}
		}

		if page.NextContinuationToken == nil {
			return nil
		}
		token = page.NextContinuationToken
	}
}

func (r *Restorer) restoreObject(ctx context.Context, key string) error {
	dest := filepath.Join(r.stateDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dest, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := r.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("downloading s3://%s/%s: %w", r.bucket, key, err)
	}
	log.Printf("syncer: restaurado %s", key)
	return nil
}
