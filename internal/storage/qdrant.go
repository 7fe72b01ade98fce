/**
 * Qdrant Vocabulary Index for OCR Verify Worker
 *
 * Stores every vocabulary word as a hashed character-trigram vector so the
 * dictionary corrector can ask for the few entries nearest to a misread word
 * instead of scoring the whole vocabulary.
 * Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
)

// TrigramDimensions is the size of the hashed trigram space
const TrigramDimensions = 256

const upsertBatchSize = 256

// vocabularyNamespace seeds deterministic point ids so re-indexing a word
// overwrites its previous point
var vocabularyNamespace = uuid.MustParse("6f0c1d2e-8a4b-4c3d-9e5f-7a6b5c4d3e2f")

// VocabularyIndex implements dictionary.CandidateIndex over a Qdrant collection
type VocabularyIndex struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
	logger           *logging.Logger
}

// NewVocabularyIndex connects to Qdrant and ensures the collection exists
func NewVocabularyIndex(ctx context.Context, address string, collectionName string, logger *logging.Logger) (*VocabularyIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	idx := &VocabularyIndex{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
		logger:           logger,
	}

	if err := idx.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

// ensureCollection creates the collection if it doesn't exist
func (v *VocabularyIndex) ensureCollection(ctx context.Context) error {
	listResp, err := v.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == v.collectionName {
			return nil
		}
	}

	_, err = v.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: v.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     TrigramDimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	v.logger.Info("Created vocabulary collection", "collection", v.collectionName, "dimensions", TrigramDimensions)
	return nil
}

// IndexVocabulary upserts every word of one language
func (v *VocabularyIndex) IndexVocabulary(ctx context.Context, language string, words []string) error {
	language = baseLanguage(language)
	points := make([]*qdrant.PointStruct, 0, upsertBatchSize)

	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: v.collectionName,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert vocabulary (language=%s): %w", language, err)
		}
		points = points[:0]
		return nil
	}

	for _, word := range words {
		if word == "" {
			continue
		}
		points = append(points, vocabularyPoint(language, word))
		if len(points) == upsertBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	v.logger.Info("Indexed vocabulary", "language", language, "words", len(words))
	return nil
}

// Nearest returns up to limit indexed words of language closest to word
func (v *VocabularyIndex) Nearest(ctx context.Context, language, word string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	results, err := v.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: v.collectionName,
		Vector:         TrigramVector(word),
		Limit:          uint64(limit),
		Filter:         languageFilter(baseLanguage(language)),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vocabulary: %w", err)
	}

	words := make([]string, 0, len(results.Result))
	for _, result := range results.Result {
		if val, ok := result.Payload["word"]; ok {
			if s := val.GetStringValue(); s != "" {
				words = append(words, s)
			}
		}
	}
	return words, nil
}

// GetCollectionInfo returns collection statistics
func (v *VocabularyIndex) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := v.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: v.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": v.collectionName,
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (v *VocabularyIndex) Close() error {
	if v.conn != nil {
		return v.conn.Close()
	}
	return nil
}

func vocabularyPoint(language, word string) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: VocabularyPointID(language, word),
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{
					Data: TrigramVector(word),
				},
			},
		},
		Payload: map[string]*qdrant.Value{
			"word":     {Kind: &qdrant.Value_StringValue{StringValue: word}},
			"language": {Kind: &qdrant.Value_StringValue{StringValue: language}},
		},
	}
}

func languageFilter(language string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "language",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: language},
						},
					},
				},
			},
		},
	}
}

// VocabularyPointID is stable per (language, word)
func VocabularyPointID(language, word string) string {
	return uuid.NewSHA1(vocabularyNamespace, []byte(language+":"+word)).String()
}

// TrigramVector hashes the character trigrams of the lowercased, space-padded
// word into TrigramDimensions buckets and L2-normalizes the counts. Words
// sharing most trigrams land close under cosine distance.
func TrigramVector(word string) []float32 {
	vec := make([]float32, TrigramDimensions)
	runes := []rune(" " + strings.ToLower(strings.TrimSpace(word)) + " ")
	if len(runes) < 3 {
		return vec
	}

	h := fnv.New32a()
	for i := 0; i+3 <= len(runes); i++ {
		h.Reset()
		h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%TrigramDimensions]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func baseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
