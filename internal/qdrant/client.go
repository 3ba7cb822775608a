// Package qdrant wraps the Qdrant gRPC API used to store dependency vectors.
package qdrant

import (
	"context"
	"depscan/internal/config"
	"depscan/internal/models"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	defaultHost = "localhost"
	defaultPort = 6334
)

type Client struct {
	client      qdrant.PointsClient
	collections qdrant.CollectionsClient
	grpcConn    *grpc.ClientConn
	logger      *zap.Logger
}

func NewClient(cfg config.QdrantConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	host, port, err := parseQdrantAddress(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant address %q: %w", cfg.URL, err)
	}

	qcfg := &qdrant.Config{
		Host: host,
		Port: port,
	}
	if cfg.APIKey != "" {
		qcfg.APIKey = cfg.APIKey
	}

	grpcClient, err := qdrant.NewGrpcClient(qcfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("qdrant client created", zap.String("host", host), zap.Int("port", port))

	return &Client{
		client:      grpcClient.Points(),
		collections: grpcClient.Collections(),
		grpcConn:    grpcClient.Conn(),
		logger:      logger,
	}, nil
}

func parseQdrantAddress(raw string) (string, int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultHost, defaultPort, nil
	}

	endpoint := strings.TrimSpace(raw)
	if strings.Contains(endpoint, "://") {
		parsed, err := neturl.Parse(endpoint)
		if err != nil {
			return "", 0, err
		}
		if parsed.Host == "" {
			return defaultHost, defaultPort, nil
		}
		endpoint = parsed.Host
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && strings.Contains(addrErr.Err, "missing port") {
			return endpoint, defaultPort, nil
		}
		return "", 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		host = defaultHost
	}

	return host, port, nil
}

func (c *Client) Close() error {
	return c.grpcConn.Close()
}

// EnsureCollection creates the collection, recreating it when the stored
// vector size differs from vectorSize.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	info, err := c.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: name,
	})
	if err == nil {
		params := info.GetResult().GetConfig().GetParams()
		if params == nil {
			return nil
		}
		existingSize := params.GetVectorsConfig().GetParams().GetSize()
		if existingSize == vectorSize {
			return nil
		}
		c.logger.Warn("collection has wrong dimension, recreating",
			zap.String("collection", name),
			zap.Uint64("expected", vectorSize),
			zap.Uint64("actual", existingSize),
		)
		if err := c.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	_, err = c.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	c.logger.Info("collection created", zap.String("collection", name), zap.Uint64("size", vectorSize))
	return nil
}

// DeleteCollection removes the entire collection and all its points from Qdrant.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.collections.Delete(ctx, &qdrant.DeleteCollection{
		CollectionName: name,
	})
	return err
}

func (c *Client) Upsert(ctx context.Context, collectionName string, points []*qdrant.PointStruct) error {
	// Wait so that a following search sees the points.
	wait := true
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

// Search returns the closest points to vector. filter may be nil.
func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error) {
	resp, err := c.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collectionName,
		Vector:         vector,
		Limit:          limit,
		Filter:         filter,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) Scroll(ctx context.Context, collectionName string, limit uint32, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	resp, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collectionName,
		Limit:          &limit,
		Offset:         offset,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.Result, resp.NextPageOffset, nil
}

// Count returns the exact number of points in a collection.
func (c *Client) Count(ctx context.Context, collectionName string) (uint64, error) {
	exact := true
	resp, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return resp.GetResult().GetCount(), nil
}

func (c *Client) DeleteByFilter(ctx context.Context, collectionName string, filter *qdrant.Filter) error {
	wait := true
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	return err
}

// KeywordFilter matches points whose payload key equals value.
func KeywordFilter(key, value string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{keywordCondition(key, value)}}
}

// BuildFilter translates a search filter into Qdrant conditions. It returns
// nil when f restricts nothing.
func BuildFilter(f models.SearchFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(f.Origins) > 0 {
		must = append(must, keywordsCondition("origin", f.Origins))
	}
	if len(f.Kinds) > 0 {
		must = append(must, keywordsCondition("kind", f.Kinds))
	}
	if f.FilePath != "" {
		must = append(must, keywordCondition("file_path", f.FilePath))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func keywordsCondition(key string, values []string) *qdrant.Condition {
	if len(values) == 1 {
		return keywordCondition(key, values[0])
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

func PayloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = valueToInterface(v)
	}
	return result
}

func valueToInterface(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	default:
		return fmt.Sprintf("%v", v)
	}
}

func MapToPayload(m map[string]interface{}) map[string]*qdrant.Value {
	result := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		result[k] = interfaceToValue(v)
	}
	return result
}

func interfaceToValue(i interface{}) *qdrant.Value {
	switch v := i.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", v)}}
	}
}
