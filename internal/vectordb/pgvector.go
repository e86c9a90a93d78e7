package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// defaultPgTable pgvector仓库的默认表名
const defaultPgTable = "chunks"

// PgVectorRepository 基于PostgreSQL pgvector扩展的向量仓库
// 适合生产环境的持久化存储，依赖数据库完成相似度计算
type PgVectorRepository struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// NewPgVectorRepository 创建新的pgvector向量仓库
// config.Path为PostgreSQL连接串
func NewPgVectorRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("connection string is required for pgvector repository")
	}

	table := config.TableName
	if table == "" {
		table = defaultPgTable
	}

	pool, err := pgxpool.New(context.Background(), config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	repo := &PgVectorRepository{
		pool:      pool,
		table:     table,
		dimension: config.Dimension,
	}

	if err := repo.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return repo, nil
}

// initialize 创建扩展、表和向量索引
func (r *PgVectorRepository) initialize() error {
	ctx := context.Background()

	if _, err := r.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			source TEXT,
			position INTEGER,
			content TEXT,
			embedding vector(%d),
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, r.table, r.dimension)
	if _, err := r.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, r.table, r.table)
	if _, err := r.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	createSourceIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_source_id_idx ON %s (source_id)`,
		r.table, r.table)
	if _, err := r.pool.Exec(ctx, createSourceIndex); err != nil {
		return fmt.Errorf("failed to create source index: %v", err)
	}

	return nil
}

// Add 添加单个文本块
func (r *PgVectorRepository) Add(chunk Chunk) error {
	return r.AddBatch([]Chunk{chunk})
}

// AddBatch 批量添加文本块
// 使用单个事务，主键冲突时更新内容和向量
func (r *PgVectorRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ctx := context.Background()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source_id, source, position, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, r.table)

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunk.ID, err)
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}

		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.SourceID,
			chunk.Source,
			chunk.Position,
			chunk.Text,
			pgvector.NewVector(chunk.Vector),
			chunk.Metadata,
			chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Get 获取单个文本块
func (r *PgVectorRepository) Get(id string) (Chunk, error) {
	ctx := context.Background()

	query := fmt.Sprintf(`
		SELECT id, source_id, source, position, content, embedding, metadata, created_at
		FROM %s WHERE id = $1`, r.table)

	var chunk Chunk
	var embedding pgvector.Vector
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&chunk.ID,
		&chunk.SourceID,
		&chunk.Source,
		&chunk.Position,
		&chunk.Text,
		&embedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chunk{}, ErrChunkNotFound
		}
		return Chunk{}, fmt.Errorf("failed to get chunk: %v", err)
	}

	chunk.Vector = embedding.Slice()
	return chunk, nil
}

// Delete 删除单个文本块
func (r *PgVectorRepository) Delete(id string) error {
	ctx := context.Background()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChunkNotFound
	}
	return nil
}

// DeleteBySource 删除指定来源的所有文本块
func (r *PgVectorRepository) DeleteBySource(sourceID string) error {
	ctx := context.Background()

	query := fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", r.table)
	if _, err := r.pool.Exec(ctx, query, sourceID); err != nil {
		return fmt.Errorf("failed to delete chunks by source: %v", err)
	}
	return nil
}

// Search 相似度搜索
// 使用余弦距离运算符<=>，由数据库索引加速；
// 来源和元数据过滤都下推到SQL，保证返回完整的前N个匹配结果
func (r *PgVectorRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	ctx := context.Background()

	query, args, err := r.buildSearchQuery(vector, filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var chunk Chunk
		var distance float32
		err := rows.Scan(
			&chunk.ID,
			&chunk.SourceID,
			&chunk.Source,
			&chunk.Position,
			&chunk.Text,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}

		// 分数随距离单调，阈值过滤可以安全地留在应用层
		score := DistanceToScore(distance, Cosine)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Chunk:    chunk,
			Score:    score,
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %v", err)
	}

	return results, nil
}

// buildSearchQuery 构建相似度搜索SQL
// 元数据等值匹配用JSONB包含运算符@>参数化下推
func (r *PgVectorRepository) buildSearchQuery(vector []float32, filter SearchFilter) (string, []interface{}, error) {
	limit := filter.MaxResults
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, source_id, source, position, content, metadata, created_at,
			embedding <=> $1 AS distance
		FROM %s`, r.table)
	args := []interface{}{pgvector.NewVector(vector)}

	var conditions []string
	if len(filter.SourceIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("source_id = ANY($%d)", len(args)+1))
		args = append(args, filter.SourceIDs)
	}
	if len(filter.Metadata) > 0 {
		metaJSON, err := json.Marshal(filter.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode metadata filter: %v", err)
		}
		conditions = append(conditions, fmt.Sprintf("metadata @> $%d::jsonb", len(args)+1))
		args = append(args, string(metaJSON))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return query, args, nil
}

// Count 获取文本块总数
func (r *PgVectorRepository) Count() (int, error) {
	ctx := context.Background()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %v", err)
	}
	return count, nil
}

// GetDimension 返回向量维数
func (r *PgVectorRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭数据库连接池
func (r *PgVectorRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func init() {
	RegisterRepository("pgvector", NewPgVectorRepository)
}
