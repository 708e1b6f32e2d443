// Package dispatcher 实现用户名可用性接口及其确定性的故障注入决策表。
//
// 决策表是一个有序规则列表，自上而下求值，第一个命中的规则产生响应。
// 除 maintenance 计数器外，同一输入总是得到字节相同的响应。
package dispatcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/logger"
	"username-checker/internal/metrics"
	"username-checker/internal/wire"
)

const (
	// Path 唯一对外提供的接口路径
	Path = "/isUserNameAvailable"
	// ParamUserName 唯一读取的查询参数
	ParamUserName = "userName"

	ruleNotFound = "notfound"
)

// Response 一次请求的完整响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Rule 产生该响应的规则名
	Rule string
	// Fault 该响应是否为注入的模拟故障
	Fault bool
}

// Write 将响应写入 http.ResponseWriter
func (r Response) Write(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	w.Write(r.Body)
}

// Options 创建调度器的参数
type Options struct {
	Faults config.FaultConfig
	// Store 为 nil 时使用内存计数器
	Store   counter.Store
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
}

// Dispatcher 请求调度器
type Dispatcher struct {
	faults  config.FaultConfig
	store   counter.Store
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	rules   []Rule
}

// New 创建调度器
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		faults:  opts.Faults,
		store:   opts.Store,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if d.store == nil {
		d.store = counter.NewMemoryStore()
	}
	if d.log == nil {
		d.log = logger.WithField("component", "dispatcher")
	}

	d.rules = []Rule{
		forbiddenRule(opts.Faults.ForbiddenUsernames),
		serverErrorRule(),
		maintenanceRule(d.store, opts.Faults.MaintenancePeriod, opts.Faults.RetryAfter, d.log, d.metrics),
		permanentMaintenanceRule(opts.Faults.RetryAfter),
		illegalResponseRule(),
		emptyRule(),
		tooShortRule(opts.Faults.MinLength),
		availabilityRule(opts.Faults.UnavailableUsernames, d.log),
	}
	return d
}

// Rules 返回按求值顺序排列的规则名
func (d *Dispatcher) Rules() []string {
	names := make([]string, len(d.rules))
	for i, rule := range d.rules {
		names[i] = rule.Name
	}
	return names
}

// Store 返回维护计数器存储
func (d *Dispatcher) Store() counter.Store {
	return d.store
}

// Handle 根据路径和查询参数计算响应，总是返回完整的响应
func (d *Dispatcher) Handle(ctx context.Context, path string, query url.Values) Response {
	if path != Path {
		return d.finish(notFound())
	}

	values, ok := query[ParamUserName]
	if !ok || len(values) == 0 {
		return d.finish(notFound())
	}
	userName := values[0]

	for _, rule := range d.rules {
		if resp, matched := rule.Apply(ctx, userName); matched {
			resp.Rule = rule.Name
			return d.finish(resp)
		}
	}

	// availability 规则总会命中
	return d.finish(notFound())
}

// ServeHTTP 实现 http.Handler
//
// 路径按未解码的原始形式比较，查询串使用宽松解析。
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.Handle(r.Context(), r.URL.EscapedPath(), parseQuery(r.URL.RawQuery)).Write(w)
}

func (d *Dispatcher) finish(resp Response) Response {
	if d.metrics != nil {
		d.metrics.RecordRule(resp.Rule, resp.StatusCode, resp.Fault)
	}
	return resp
}

func notFound() Response {
	return textResponse(http.StatusNotFound, "Not Found", ruleNotFound)
}

func jsonResponse(status int, body []byte) Response {
	header := make(http.Header)
	header.Set("Content-Type", wire.JSONContentType)
	return Response{StatusCode: status, Header: header, Body: body}
}

func textResponse(status int, body, rule string) Response {
	header := make(http.Header)
	header.Set("Content-Type", wire.TextContentType)
	return Response{StatusCode: status, Header: header, Body: []byte(body), Rule: rule}
}
