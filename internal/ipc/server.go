package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"backhaul/internal/daemon"
	"backhaul/internal/logging"
	"backhaul/internal/queue"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stop func()
}

// NewServer configures the IPC server at the given socket path. The stop
// callback is invoked when a client requests daemon shutdown; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, stop func()) (*Server, error) {
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

	serverCtx, cancel := context.WithCancel(ctx)
	server := &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpc.NewServer(),
		ctx:       serverCtx,
		cancel:    cancel,
		stop:      stop,
	}

	svc := &service{daemon: d, logger: logger, ctx: serverCtx, stop: server.requestStop}
	if err := server.rpcServer.RegisterName("Backhaul", svc); err != nil {
		listener.Close()
		cancel()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return server, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
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
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

func (s *Server) requestStop() {
	if s.stop != nil {
		s.stop()
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	stop   func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func convertOperation(op queue.Operation) Operation {
	wire := Operation{
		ID:          op.ID,
		Type:        op.Type,
		Payload:     string(op.Payload),
		Priority:    op.Priority.String(),
		Status:      string(op.Status),
		Attempts:    op.Attempts,
		MaxAttempts: op.MaxAttempts,
		CreatedAt:   op.CreatedAt.Format(time.RFC3339),
		Error:       op.Error,
	}
	if op.LastAttempt != nil {
		wire.LastAttempt = op.LastAttempt.Format(time.RFC3339)
	}
	return wire
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Online = status.Online
	resp.Reconciler = status.Reconciler
	resp.StorePath = status.StorePath
	resp.LockPath = status.LockFilePath
	resp.HandlerTypes = s.daemon.HandlerTypes()
	resp.QueueStats = make(map[string]int, len(status.QueueStats))
	for k, v := range status.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	return nil
}

func (s *service) Sync(_ SyncRequest, resp *SyncResponse) error {
	s.log().Debug("sync requested")
	if err := s.daemon.SyncNow(s.ctx); err != nil {
		resp.Synced = false
		resp.Message = err.Error()
		return nil
	}
	resp.Synced = true
	resp.Message = "sync completed"
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := queue.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, parsed)
	}
	ops := s.daemon.ListQueue(s.ctx, statuses)
	resp.Operations = make([]Operation, 0, len(ops))
	for _, op := range ops {
		resp.Operations = append(resp.Operations, convertOperation(op))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("operation id required")
	}
	op, ok := s.daemon.GetOperation(s.ctx, id)
	if !ok {
		return fmt.Errorf("operation %s not found", id)
	}
	resp.Operation = convertOperation(op)
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.Int("operation_count", len(req.IDs)))
	requeued := s.daemon.RetryFailed(s.ctx, req.IDs)
	resp.Requeued = requeued
	s.log().Info("failed operations requeued",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int("requeued_count", requeued))
	return nil
}

func (s *service) StoreHealth(_ StoreHealthRequest, resp *StoreHealthResponse) error {
	health, err := s.daemon.StoreHealth(s.ctx)
	resp.Path = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.Partitions = append(resp.Partitions, health.Partitions...)
	resp.TotalRecords = health.TotalRecords
	resp.IntegrityCheck = health.IntegrityCheck
	resp.Error = health.Error
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.stop != nil {
		// Deferred so the RPC response reaches the client before shutdown.
		go s.stop()
	}
	resp.Stopped = true
	return nil
}
