package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client drives the daemon over its Unix socket. Every method is a
// synchronous JSON-RPC round trip.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call("Adsplice."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to begin processing the queue.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop asks the daemon to halt its workflow.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status reports daemon, stage, and queue state.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// AddVideo enqueues a source video for processing.
func (c *Client) AddVideo(path string) (*AddVideoResponse, error) {
	return call[AddVideoRequest, AddVideoResponse](c, "AddVideo", AddVideoRequest{Path: path})
}

// LogTail reads daemon log lines starting at the request offset.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// TestNotification sends a test push through the configured notifier.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// QueueList returns queue items, optionally filtered by status.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	return call[QueueListRequest, QueueListResponse](c, "QueueList", QueueListRequest{Statuses: statuses})
}

// QueueDescribe returns one queue item by id.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	return call[QueueDescribeRequest, QueueDescribeResponse](c, "QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueClear removes every item from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	return call[QueueClearRequest, QueueClearResponse](c, "QueueClear", QueueClearRequest{})
}

// QueueClearCompleted removes only completed items.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	return call[QueueClearCompletedRequest, QueueClearCompletedResponse](c, "QueueClearCompleted", QueueClearCompletedRequest{})
}

// QueueRemove deletes the given items.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	return call[QueueRemoveRequest, QueueRemoveResponse](c, "QueueRemove", QueueRemoveRequest{IDs: ids})
}

// QueueReset returns stuck in-flight items to their last stable status.
func (c *Client) QueueReset() (*QueueResetResponse, error) {
	return call[QueueResetRequest, QueueResetResponse](c, "QueueReset", QueueResetRequest{})
}

// QueueRetry re-queues failed (and review) items.
func (c *Client) QueueRetry(ids []int64) (*QueueRetryResponse, error) {
	return call[QueueRetryRequest, QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueueHealth returns aggregate queue counts.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthRequest, QueueHealthResponse](c, "QueueHealth", QueueHealthRequest{})
}
