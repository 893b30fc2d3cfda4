// Package awsstore is the cloud backend: reports and stations are DynamoDB
// items and the flood-risk reference layer is an S3 object.
package awsstore

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/google/uuid"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store implements the backend contract over DynamoDB.
type Store struct {
	db            DynamoAPI
	reportsTable  string
	stationsTable string
	layer         delivery.Source
	pool          *pool
	logger        *slog.Logger
}

// Option overrides a Store collaborator.
type Option func(*Store)

// WithReferenceLayer serves the reference layer from src instead of S3.
func WithReferenceLayer(src delivery.Source) Option {
	return func(s *Store) { s.layer = src }
}

// New creates a Store over an existing DynamoDB client. The layer defaults to
// nil and must be supplied with WithReferenceLayer.
func New(db DynamoAPI, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Store {
	s := &Store{
		db:            db,
		reportsTable:  cfg.ReportsTable,
		stationsTable: cfg.StationsTable,
		pool:          newPool(cfg.PoolMaxConns, cfg.PoolAcquireTimeout, config.BackendAWS, metrics),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds SDK clients from cfg. Static credentials are used when both keys
// are set; otherwise the default credential chain applies. AWSEndpointURL
// points both clients at an emulator such as LocalStack.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithHTTPClient(newHTTPClient(cfg)),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "load aws config")
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})

	store := New(db, cfg, logger, metrics)
	if cfg.ObjectStore != config.ObjectStoreGCS {
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.AWSEndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
				o.UsePathStyle = true
			}
		})
		store.layer = NewS3Source(s3Client, cfg.S3Bucket, cfg.S3FloodRiskKey, store.pool)
	}
	for _, opt := range opts {
		opt(store)
	}

	logger.Info("aws backend configured",
		"region", cfg.AWSRegion,
		"reports_table", cfg.ReportsTable,
		"stations_table", cfg.StationsTable,
		"object_store", cfg.ObjectStore,
		"pool_min", cfg.PoolMinConns,
		"pool_max", cfg.PoolMaxConns,
	)
	return store, nil
}

func (s *Store) Name() string { return config.BackendAWS }

func (s *Store) ReferenceLayer() delivery.Source { return s.layer }

// Close releases the reference layer client if it holds one.
func (s *Store) Close() error {
	if c, ok := s.layer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CheckReadiness describes both tables.
func (s *Store) CheckReadiness(ctx context.Context) error {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, table := range []string{s.reportsTable, s.stationsTable} {
		if _, err := s.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
			return domain.Wrap(domain.KindBackendUnavailable, err, "describe table "+table)
		}
	}
	return nil
}

func (s *Store) ListReports(ctx context.Context) ([]domain.FloodReport, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var reports []domain.FloodReport
	err = s.scan(ctx, s.reportsTable, func(item map[string]types.AttributeValue) {
		r, err := unmarshalReport(item)
		if err != nil {
			s.logger.Warn("skipping unreadable report item", "table", s.reportsTable, "error", err)
			return
		}
		reports = append(reports, r)
	})
	return reports, err
}

func (s *Store) GetReport(ctx context.Context, id string) (domain.FloodReport, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return domain.FloodReport{}, err
	}
	defer release()

	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.reportsTable),
		Key:            stringKey("id", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.FloodReport{}, classify(err, "get report "+id)
	}
	if out.Item == nil {
		return domain.FloodReport{}, domain.Errorf(domain.KindNotFound, "report %s not found", id)
	}
	r, err := unmarshalReport(out.Item)
	if err != nil {
		return domain.FloodReport{}, itemError("report", id, err)
	}
	return r, nil
}

// CreateReport writes with attribute_not_exists(id) so a generated ID never
// overwrites an existing report.
func (s *Store) CreateReport(ctx context.Context, r domain.FloodReport) (domain.FloodReport, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return domain.FloodReport{}, err
	}
	defer release()

	r.ID = uuid.NewString()
	item, err := marshalReport(r)
	if err != nil {
		return domain.FloodReport{}, domain.Wrap(domain.KindValidation, err, "encode report")
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.reportsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return domain.FloodReport{}, classify(err, "put report")
	}
	return r, nil
}

func (s *Store) ListStations(ctx context.Context) ([]domain.WeatherStation, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var stations []domain.WeatherStation
	err = s.scan(ctx, s.stationsTable, func(item map[string]types.AttributeValue) {
		st, err := unmarshalStation(item)
		if err != nil {
			s.logger.Warn("skipping unreadable station item", "table", s.stationsTable, "error", err)
			return
		}
		stations = append(stations, st)
	})
	return stations, err
}

func (s *Store) GetStation(ctx context.Context, gaugeID string) (domain.WeatherStation, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	defer release()

	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.stationsTable),
		Key:            stringKey("gauge_id", gaugeID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.WeatherStation{}, classify(err, "get station "+gaugeID)
	}
	if out.Item == nil {
		return domain.WeatherStation{}, domain.Errorf(domain.KindNotFound, "station %s not found", gaugeID)
	}
	st, err := unmarshalStation(out.Item)
	if err != nil {
		return domain.WeatherStation{}, itemError("station", gaugeID, err)
	}
	return st, nil
}

// UpsertStation replaces the whole item keyed by gauge_id in one PutItem.
func (s *Store) UpsertStation(ctx context.Context, st domain.WeatherStation) (domain.WeatherStation, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	defer release()

	st.UpdatedAt = domain.Time(domain.Now())
	item, err := marshalStation(st)
	if err != nil {
		return domain.WeatherStation{}, domain.Wrap(domain.KindValidation, err, "encode station")
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.stationsTable),
		Item:      item,
	}); err != nil {
		return domain.WeatherStation{}, classify(err, "put station "+st.GaugeID)
	}
	return st, nil
}

func (s *Store) scan(ctx context.Context, table string, fn func(map[string]types.AttributeValue)) error {
	p := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{TableName: aws.String(table)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return classify(err, "scan "+table)
		}
		for _, item := range page.Items {
			fn(item)
		}
	}
	return nil
}
