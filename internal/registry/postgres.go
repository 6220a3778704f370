package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/flowweave/flowweave/config"
)

// PostgresRegistry reads capability metadata from the platform's relational
// store. All operations are reads; the schema is owned elsewhere.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry opens a connection using the configured DSN.
func NewPostgresRegistry(cfg config.PostgresConfig) (*PostgresRegistry, error) {
	dsn := cfg.URL
	if dsn == "" {
		host := cfg.Host
		port := cfg.Port
		ssl := cfg.SSLMode
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "5432"
		}
		if ssl == "" {
			ssl = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", cfg.User, cfg.Password, host, port, cfg.DBName, ssl)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &PostgresRegistry{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *PostgresRegistry) Close() error {
	return r.db.Close()
}

// ListNodes returns every node with nested actions and parameters.
func (r *PostgresRegistry) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, use_case, default_auth FROM nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var nodes []Node
	for rows.Next() {
		var n Node
		var useCase, defaultAuth sql.NullString
		if err := rows.Scan(&n.ID, &n.Name, &useCase, &defaultAuth); err != nil {
			return nil, err
		}
		n.UseCase = useCase.String
		n.DefaultAuth = defaultAuth.String
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for i := range nodes {
		actions, err := r.actionsForNode(ctx, nodes[i].ID)
		if err != nil {
			return nil, err
		}
		nodes[i].Actions = actions
	}
	return nodes, nil
}

// GetNode returns a single node with nested actions.
func (r *PostgresRegistry) GetNode(ctx context.Context, id string) (Node, error) {
	var n Node
	var useCase, defaultAuth sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, name, use_case, default_auth FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &useCase, &defaultAuth)
	if err == sql.ErrNoRows {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n.UseCase = useCase.String
	n.DefaultAuth = defaultAuth.String
	actions, err := r.actionsForNode(ctx, n.ID)
	if err != nil {
		return Node{}, err
	}
	n.Actions = actions
	return n, nil
}

// GetAction returns a single action with its parameter declarations.
func (r *PostgresRegistry) GetAction(ctx context.Context, id string) (Action, error) {
	var a Action
	var desc sql.NullString
	var paramsJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, node_id, name, description, parameters FROM actions WHERE id = $1`, id).
		Scan(&a.ID, &a.NodeID, &a.Name, &desc, &paramsJSON)
	if err == sql.ErrNoRows {
		return Action{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a.Description = desc.String
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &a.Parameters); err != nil {
			return Action{}, fmt.Errorf("decode parameters for action %s: %w", id, err)
		}
	}
	return a, nil
}

// ListParameters returns the parameter declarations of an action.
func (r *PostgresRegistry) ListParameters(ctx context.Context, actionID string) ([]Parameter, error) {
	a, err := r.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	return a.Parameters, nil
}

// Load pulls the full catalog into an immutable snapshot for one planning turn.
func (r *PostgresRegistry) Load(ctx context.Context) (*Snapshot, error) {
	nodes, err := r.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(nodes), nil
}

func (r *PostgresRegistry) actionsForNode(ctx context.Context, nodeID string) ([]Action, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, node_id, name, description, parameters FROM actions WHERE node_id = $1 ORDER BY name`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var actions []Action
	for rows.Next() {
		var a Action
		var desc sql.NullString
		var paramsJSON []byte
		if err := rows.Scan(&a.ID, &a.NodeID, &a.Name, &desc, &paramsJSON); err != nil {
			return nil, err
		}
		a.Description = desc.String
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &a.Parameters); err != nil {
				return nil, fmt.Errorf("decode parameters for action %s: %w", a.ID, err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
