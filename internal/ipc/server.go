package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"slices"
	"sync"
	"time"

	"adsplice/internal/api"
	"adsplice/internal/daemon"
	"adsplice/internal/deps"
	"adsplice/internal/logging"
	"adsplice/internal/logs"
	"adsplice/internal/queue"
	"adsplice/internal/stage"
)

// Server answers JSON-RPC requests on a Unix domain socket, delegating
// every call to the daemon. One goroutine per connection; the codec is
// line-oriented JSON so any language can drive it.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the socket at path, replacing any stale socket file
// left behind by a previous run.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	handlers := &service{
		daemon: d,
		logger: logger.With(logging.String("component", "ipc")),
		ctx:    ctx,
	}
	if err := rpcServer.RegisterName("Adsplice", handlers); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts connections until Close or context cancellation.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_accept_failed"),
				logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
			continue
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
		}(conn)
	}
}

// Close stops accepting, waits for in-flight calls, and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun adsplice stop"))
	}
}

// service holds the RPC handler methods. Method names under "Adsplice."
// are the wire protocol; changing one breaks older CLIs.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func queueItemDTO(item *queue.Item) QueueItem {
	return QueueItem(api.FromQueueItem(item))
}

func (s *service) event(name string, extra ...any) {
	args := append([]any{slog.String(logging.FieldEventType, name)}, extra...)
	s.logger.Info(name, args...)
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.event("daemon_start")
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.event("daemon_stop")
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.LastError = status.Workflow.LastError

	resp.QueueStats = make(map[string]int, len(status.Workflow.QueueStats))
	for k, v := range status.Workflow.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	if status.Workflow.LastItem != nil {
		item := queueItemDTO(status.Workflow.LastItem)
		resp.LastItem = &item
	}
	resp.StageHealth = stageHealthList(status.Workflow.StageHealth)
	resp.Dependencies = dependencyList(status.Dependencies)
	return nil
}

func stageHealthList(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, name := range slices.Sorted(maps.Keys(health)) {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

func dependencyList(checks []deps.Status) []DependencyStatus {
	if len(checks) == 0 {
		return nil
	}
	out := make([]DependencyStatus, 0, len(checks))
	for _, dep := range checks {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

func (s *service) AddVideo(req AddVideoRequest, resp *AddVideoResponse) error {
	item, err := s.daemon.AddVideo(s.ctx, req.Path)
	if err != nil {
		return err
	}
	resp.Item = queueItemDTO(item)
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		if parsed, ok := queue.ParseStatus(raw); ok {
			statuses = append(statuses, parsed)
		}
	}
	items, err := s.daemon.ListQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			resp.Items = append(resp.Items, queueItemDTO(item))
		}
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid queue item id %d", req.ID)
	}
	item, err := s.daemon.GetQueueItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %d not found", req.ID)
	}
	resp.Item = queueItemDTO(item)
	return nil
}

// counted runs a queue mutation that reports an affected-row count, stores
// the count in out, and logs the named event.
func (s *service) counted(event, field string, out *int64, op func() (int64, error)) error {
	n, err := op()
	if err != nil {
		return err
	}
	*out = n
	s.event(event, logging.Int64(field, n))
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	return s.counted("queue_clear", "removed_count", &resp.Removed, func() (int64, error) {
		return s.daemon.ClearQueue(s.ctx)
	})
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	return s.counted("queue_clear_completed", "removed_count", &resp.Removed, func() (int64, error) {
		return s.daemon.ClearCompleted(s.ctx)
	})
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue remove requires at least one id")
	}
	return s.counted("queue_remove", "removed_count", &resp.Removed, func() (int64, error) {
		return s.daemon.RemoveItems(s.ctx, req.IDs)
	})
}

func (s *service) QueueReset(_ QueueResetRequest, resp *QueueResetResponse) error {
	return s.counted("queue_reset_stuck", "updated_count", &resp.Updated, func() (int64, error) {
		return s.daemon.ResetStuck(s.ctx)
	})
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	return s.counted("queue_retry", "updated_count", &resp.Updated, func() (int64, error) {
		return s.daemon.RetryFailed(s.ctx, req.IDs)
	})
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Failed = health.Failed
	resp.Review = health.Review
	resp.Completed = health.Completed
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}

	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}

	// Following callers hold the RPC open while the tail polls; bound
	// that with a little slack past the requested wait.
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}

	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
