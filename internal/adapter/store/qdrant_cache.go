package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"relay-core/internal/domain/entity"
)

// cacheTTL bounds how stale a cached answer may be.
const cacheTTL = 24 * time.Hour

// QdrantCache is the semantic response cache: plain-mode answers keyed
// by prompt embedding, with a freshness filter on created_at.
type QdrantCache struct {
	client         *qdrant.Client
	collectionName string
	threshold      float32
	log            zerolog.Logger
}

func NewQdrantCache(client *qdrant.Client, collectionName string, threshold float32, log zerolog.Logger) *QdrantCache {
	if threshold <= 0 {
		threshold = 0.90
	}
	return &QdrantCache{
		client:         client,
		collectionName: collectionName,
		threshold:      threshold,
		log:            log,
	}
}

// InitCollection creates the collection and the created_at payload index
// used by the freshness filter.
func (s *QdrantCache) InitCollection(ctx context.Context, dim uint64) error {
	_, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.NotFound {
			return err
		}
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dim,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collectionName,
		FieldName:      "created_at",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		// Index may already exist from a previous run.
		s.log.Debug().Err(err).Msg("created_at index not created")
	}
	return nil
}

// Lookup returns the freshest sufficiently similar cached response and
// the prompt it was stored under, or nil on a miss.
func (s *QdrantCache) Lookup(ctx context.Context, vector []float32) (*entity.ProviderResponse, string, error) {
	notBefore := time.Now().Add(-cacheTTL).Unix()
	freshness := &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: "created_at",
				Range: &qdrant.Range{
					Gte: qdrant.PtrOf(float64(notBefore)),
				},
			},
		},
	}

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{freshness}},
		Limit:          qdrant.PtrOf(uint64(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: &s.threshold,
	})
	if err != nil || len(res) == 0 {
		return nil, "", err
	}

	hit := res[0]
	payload := hit.Payload
	resp := &entity.ProviderResponse{
		Text:      payload["content"].GetStringValue(),
		ModelUsed: payload["model"].GetStringValue(),
		Cached:    true,
	}
	return resp, payload["prompt"].GetStringValue(), nil
}

// Save upserts one answered prompt with its vector.
func (s *QdrantCache) Save(ctx context.Context, prompt string, resp *entity.ProviderResponse, vector []float32) error {
	payload := map[string]any{
		"prompt":     prompt,
		"content":    resp.Text,
		"model":      resp.ModelUsed,
		"created_at": time.Now().Unix(),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	return err
}
