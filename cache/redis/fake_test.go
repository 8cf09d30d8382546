package redis

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
)

// fakeServer speaks enough RESP to exercise the store without a real Redis.
type fakeServer struct {
	mu       sync.Mutex
	data     map[string]string
	ttls     map[string]string
	password string
	authed   bool
	commands []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{data: map[string]string{}, ttls: map[string]string{}}
}

func (f *fakeServer) dial(context.Context, Options) (net.Conn, error) {
	client, server := net.Pipe()
	go f.serve(server)
	return client, nil
}

func (f *fakeServer) serve(nc net.Conn) {
	defer nc.Close()
	r := bufio.NewReader(nc)
	w := bufio.NewWriter(nc)
	for {
		req, err := readReply(r)
		if err != nil {
			return
		}
		parts, _ := req.([]any)
		args := make([]string, len(parts))
		for i, p := range parts {
			args[i] = string(p.([]byte))
		}
		w.WriteString(f.handle(args))
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (f *fakeServer) handle(args []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	f.commands = append(f.commands, strings.Join(args, " "))

	switch strings.ToUpper(args[0]) {
	case "AUTH":
		if args[1] != f.password {
			return "-WRONGPASS invalid password\r\n"
		}
		f.authed = true
		return "+OK\r\n"
	case "SELECT":
		return "+OK\r\n"
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := f.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return bulk(v)
	case "SET":
		f.data[args[1]] = args[2]
		delete(f.ttls, args[1])
		if len(args) == 5 && strings.EqualFold(args[3], "PX") {
			f.ttls[args[1]] = args[4]
		}
		return "+OK\r\n"
	case "PTTL":
		if _, ok := f.data[args[1]]; !ok {
			return ":-2\r\n"
		}
		ms, ok := f.ttls[args[1]]
		if !ok {
			return ":-1\r\n"
		}
		return ":" + ms + "\r\n"
	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if _, ok := f.data[k]; ok {
				delete(f.data, k)
				delete(f.ttls, k)
				n++
			}
		}
		return fmt.Sprintf(":%d\r\n", n)
	case "FLUSHDB":
		f.data = map[string]string{}
		f.ttls = map[string]string{}
		return "+OK\r\n"
	case "SCAN":
		prefix := strings.TrimSuffix(args[3], "*")
		var keys []string
		for k := range f.data {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		var b strings.Builder
		b.WriteString("*2\r\n")
		b.WriteString(bulk("0"))
		fmt.Fprintf(&b, "*%d\r\n", len(keys))
		for _, k := range keys {
			b.WriteString(bulk(k))
		}
		return b.String()
	default:
		return "-ERR unknown command '" + args[0] + "'\r\n"
	}
}

func bulk(s string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s)
}
