package es

import (
	"context"
	"errors"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/versiontype"
	"github.com/goccy/go-json"
)

const MaxSearchDepth = 400

type MessageRepo interface {
	SearchMessages(ctx context.Context, convID uint64, keyword string, from, size int) ([]*MessageES, error)
	IndexMessage(ctx context.Context, msg *MessageES, version int64) error
	DeleteMessage(ctx context.Context, id uint64) error
}

type MessageRepoImpl struct {
	client *elasticsearch.TypedClient
}

func NewMessageRepo(client *elasticsearch.TypedClient) MessageRepo {
	return &MessageRepoImpl{client: client}
}

// SearchMessages 会话内全文检索，结果按相关度再按序号倒序
func (s *MessageRepoImpl) SearchMessages(ctx context.Context, convID uint64, keyword string, from, size int) ([]*MessageES, error) {
	if from >= MaxSearchDepth {
		return []*MessageES{}, nil
	}

	query := &types.Query{
		Bool: &types.BoolQuery{
			Filter: []types.Query{
				{Term: map[string]types.TermQuery{"conversation_id": {Value: convID}}},
			},
			Must: []types.Query{
				{Match: map[string]types.MatchQuery{"content": {Query: keyword}}},
			},
		},
	}

	resp, err := s.client.Search().
		Index(MessageIndex).
		Query(query).
		From(from).
		Size(size).
		Sort(
			types.SortOptions{SortOptions: map[string]types.FieldSort{"_score": {Order: &sortorder.Desc}}},
			types.SortOptions{SortOptions: map[string]types.FieldSort{"seq": {Order: &sortorder.Desc}}},
		).
		Highlight(&types.Highlight{
			Fields: map[string]types.HighlightField{"content": {}},
		}).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*MessageES, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var msg MessageES
		if err = json.Unmarshal(hit.Source_, &msg); err != nil {
			continue
		}
		msg.Highlight = hit.Highlight["content"]
		results = append(results, &msg)
	}
	return results, nil
}

// IndexMessage 外部版本号写入，乱序到达的旧版本被 ES 拒绝
func (s *MessageRepoImpl) IndexMessage(ctx context.Context, msg *MessageES, version int64) error {
	docID := strconv.FormatUint(msg.ID, 10)

	_, err := s.client.Index(MessageIndex).
		Id(docID).
		Document(msg).
		Version(strconv.FormatInt(version, 10)).
		VersionType(versiontype.External).
		Do(ctx)

	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) {
			if e.Status == ConflictCode {
				return nil
			}
		}
		return err
	}

	return nil
}

func (s *MessageRepoImpl) DeleteMessage(ctx context.Context, id uint64) error {
	docID := strconv.FormatUint(id, 10)

	_, err := s.client.Delete(MessageIndex, docID).Do(ctx)

	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) {
			if e.Status == NotFoundCode {
				return nil
			}
		}
		return err
	}

	return nil
}
