// Package connection 管理控制台连接
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// Connection 表示一个控制台客户端连接
type Connection struct {
	Conn     net.Conn
	ConnID   string
	Operator session.Operator

	writeMu sync.Mutex
}

// Send writes data fully. Concurrent senders are serialized.
func (c *Connection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return Send(c.Conn, data, c.ConnID)
}

// SendLine writes line followed by a newline.
func (c *Connection) SendLine(line string) error {
	return c.Send([]byte(line + "\n"))
}

// Manager 连接管理器
type Manager struct {
	connections sync.Map
}

func NewManager() *Manager {
	return &Manager{}
}

// AddConnection 添加连接
func (cm *Manager) AddConnection(conn *Connection) {
	cm.connections.Store(conn.ConnID, conn)
	logger.InfoF("[%s] Operator %s attached", conn.ConnID, conn.Operator)
}

// RemoveConnection 移除连接
func (cm *Manager) RemoveConnection(connID string) {
	if value, ok := cm.connections.LoadAndDelete(connID); ok {
		logger.InfoF("[%s] Operator %s detached", connID, value.(*Connection).Operator)
	}
}

// GetConnection 获取连接
func (cm *Manager) GetConnection(connID string) (*Connection, bool) {
	if value, ok := cm.connections.Load(connID); ok {
		return value.(*Connection), true
	}
	return nil, false
}

// ForOperator returns every connection attached by operator.
func (cm *Manager) ForOperator(operator session.Operator) []*Connection {
	var out []*Connection
	cm.connections.Range(func(_, value any) bool {
		if c := value.(*Connection); c.Operator == operator {
			out = append(out, c)
		}
		return true
	})
	return out
}

// CloseAll closes every registered connection.
func (cm *Manager) CloseAll() {
	cm.connections.Range(func(key, value any) bool {
		c := value.(*Connection)
		if err := c.Conn.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.ConnID, err)
		}
		return true
	})
}

// Send 发送数据到客户端
func Send(conn net.Conn, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to client", connID, total)
	return nil
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading line, details: %v", connID, err)
	}
}
