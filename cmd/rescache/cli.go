package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/internal/config"
	"github.com/unkn0wn-root/rescache/resource"
)

type item = map[string]any

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: rescache <command> [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  get <id>                 Read one item")
	fmt.Fprintln(w, "  list [key=value ...]     Read the collection")
	fmt.Fprintln(w, "  patch <id> <json>        Patch one item (optimistic)")
	fmt.Fprintln(w, "  delete <id>              Delete one item")
	fmt.Fprintln(w, "  watch <id> [duration]    Print the item whenever it changes")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  RESCACHE_BASE_URL        Collection address (required)")
	fmt.Fprintln(w, "  RESCACHE_RESOURCE        Resource name (default item)")
	fmt.Fprintln(w, "  RESCACHE_PROVIDER        memory | ristretto | bigcache | redis")
	fmt.Fprintln(w, "  RESCACHE_REDIS_ADDR      Redis address for the redis provider")
	fmt.Fprintln(w, "  RESCACHE_CODEC           json | cbor | msgpack")
	fmt.Fprintln(w, "  RESCACHE_TOKEN           Bearer token")
	fmt.Fprintln(w, "  RESCACHE_LOG_LEVEL       debug | info | warn | error")
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}
	switch args[0] {
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	case "get", "list", "patch", "delete", "watch":
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: get <id>")
		}
		return a.get(ctx, out, rest[0])
	case "list":
		p, err := parseParams(rest)
		if err != nil {
			return err
		}
		return a.list(ctx, out, p)
	case "patch":
		if len(rest) != 2 {
			return fmt.Errorf("usage: patch <id> <json>")
		}
		return a.patch(ctx, out, rest[0], rest[1])
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: delete <id>")
		}
		return a.delete(ctx, out, rest[0])
	default:
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("usage: watch <id> [duration]")
		}
		if len(rest) == 2 {
			d, err := time.ParseDuration(rest[1])
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return a.watch(ctx, out, rest[0])
	}
}

// parseParams turns key=value arguments into query parameters.
func parseParams(args []string) (resource.Params, error) {
	p := resource.Params{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", kv)
		}
		p[k] = v
	}
	return p, nil
}

func (a *app) get(ctx context.Context, out io.Writer, id string) error {
	res, err := rescache.Read(ctx, a.ctl, resource.Detail[item](a.items), resource.Params{resource.IDKey: id})
	if err != nil {
		return err
	}
	return writeJSON(out, res.Data)
}

func (a *app) list(ctx context.Context, out io.Writer, p resource.Params) error {
	res, err := rescache.Read(ctx, a.ctl, resource.List[any](a.items), p)
	if err != nil {
		return err
	}
	return writeJSON(out, res.Data)
}

func (a *app) patch(ctx context.Context, out io.Writer, id, body string) error {
	var fields item
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return fmt.Errorf("patch body: %w", err)
	}
	req := resource.PartialUpdate[item](a.items).WithOptimistic(mergeFields)
	v, err := rescache.Mutate(ctx, a.ctl, req, resource.Params{resource.IDKey: id}, fields,
		rescache.InvalidatesResource(a.items))
	if err != nil {
		return err
	}
	return writeJSON(out, v)
}

func (a *app) delete(ctx context.Context, out io.Writer, id string) error {
	_, err := rescache.Mutate(ctx, a.ctl, resource.Delete[any](a.items), resource.Params{resource.IDKey: id}, nil,
		rescache.InvalidatesResource(a.items))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", id)
	return nil
}

func (a *app) watch(ctx context.Context, out io.Writer, id string) error {
	req := resource.Detail[item](a.items).Extend(resource.WithPollInterval(a.poll))
	q := rescache.Watch(ctx, a.ctl, req, resource.Params{resource.IDKey: id})
	defer q.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.Changes():
			s := q.State()
			if s.Loading {
				continue
			}
			if s.Err != nil {
				fmt.Fprintf(out, "%s error: %v\n", time.Now().Format(time.TimeOnly), s.Err)
				continue
			}
			b, err := json.Marshal(s.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s stale=%t %s\n", s.FetchedAt.Format(time.TimeOnly), s.Stale, b)
		}
	}
}

// mergeFields applies a patch body to the cached item.
func mergeFields(cached item, body any) (item, error) {
	fields, ok := body.(item)
	if !ok {
		return nil, fmt.Errorf("patch body is %T, want a JSON object", body)
	}
	next := make(item, len(cached)+len(fields))
	for k, v := range cached {
		next[k] = v
	}
	for k, v := range fields {
		next[k] = v
	}
	return next, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
