package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"username-checker/internal/counter"
	"username-checker/internal/metrics"
	"username-checker/internal/wire"
)

// Rule 决策表中的一条规则
//
// Apply 返回 false 表示不命中，继续求值下一条规则。
type Rule struct {
	Name  string
	Apply func(ctx context.Context, userName string) (Response, bool)
}

const (
	RuleForbidden            = "forbidden"
	RuleServerError          = "servererror"
	RuleMaintenance          = "maintenance"
	RulePermanentMaintenance = "maintenance!"
	RuleIllegalResponse      = "illegalresponse"
	RuleEmpty                = "empty"
	RuleTooShort             = "tooshort"
	RuleAvailability         = "availability"
)

const maintenanceReason = "Temporarily unavailable for maintenance"

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func fault(resp Response) Response {
	resp.Fault = true
	return resp
}

func forbiddenRule(names []string) Rule {
	forbidden := toSet(names)
	return Rule{
		Name: RuleForbidden,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if _, ok := forbidden[userName]; !ok {
				return Response{}, false
			}
			body := wire.Error(true, fmt.Sprintf("Username is not valid: %s.", userName))
			return fault(jsonResponse(http.StatusBadRequest, body)), true
		},
	}
}

func serverErrorRule() Rule {
	return Rule{
		Name: RuleServerError,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if userName != "servererror" {
				return Response{}, false
			}
			body := wire.Error(true, "The database is corrupted")
			return fault(jsonResponse(http.StatusInternalServerError, body)), true
		},
	}
}

func maintenanceResponse(errValue interface{}, retryAfter int) Response {
	resp := fault(jsonResponse(http.StatusInternalServerError, wire.Error(errValue, maintenanceReason)))
	resp.Header.Set("Retry-After", strconv.Itoa(retryAfter))
	return resp
}

// maintenanceRule 每 period 次请求中只有第 period 次放行，放行时继续求值后续规则
func maintenanceRule(store counter.Store, period int64, retryAfter int, log logrus.FieldLogger, m *metrics.Metrics) Rule {
	return Rule{
		Name: RuleMaintenance,
		Apply: func(ctx context.Context, userName string) (Response, bool) {
			if userName != "maintenance" {
				return Response{}, false
			}

			n, err := store.Incr(ctx)
			if err != nil {
				log.WithError(err).Error("维护计数器递增失败，按维护故障处理")
				return maintenanceResponse(true, retryAfter), true
			}
			if m != nil {
				m.SetMaintenanceCounter(n)
			}

			entry := log.WithField("counter", n)
			if n%period != 0 {
				entry.Info("注入维护故障")
				return maintenanceResponse(true, retryAfter), true
			}
			entry.Info("放行维护请求")
			return Response{}, false
		},
	}
}

func permanentMaintenanceRule(retryAfter int) Rule {
	return Rule{
		Name: RulePermanentMaintenance,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if userName != "maintenance!" {
				return Response{}, false
			}
			// error 字段为字符串，与其他错误响应不同，客户端测试依赖这一点
			return maintenanceResponse("Internal Server Error", retryAfter), true
		},
	}
}

func illegalResponseRule() Rule {
	return Rule{
		Name: RuleIllegalResponse,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if userName != "illegalresponse" {
				return Response{}, false
			}
			body := wire.Object(wire.Field{Key: "isAvailable", Value: false})
			return fault(jsonResponse(http.StatusOK, body)), true
		},
	}
}

func emptyRule() Rule {
	return Rule{
		Name: RuleEmpty,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if userName != "" {
				return Response{}, false
			}
			return textResponse(http.StatusBadRequest, "Bad Request: userName 이 비어있습니다.", ""), true
		},
	}
}

func tooShortRule(minLength int) Rule {
	return Rule{
		Name: RuleTooShort,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			if utf8.RuneCountInString(userName) >= minLength {
				return Response{}, false
			}
			body := fmt.Sprintf("Bad Request: userName은 최소 %d자 이상이어야 합니다.", minLength)
			return textResponse(http.StatusBadRequest, body, ""), true
		},
	}
}

func availabilityRule(unavailableNames []string, log logrus.FieldLogger) Rule {
	unavailable := toSet(unavailableNames)
	return Rule{
		Name: RuleAvailability,
		Apply: func(_ context.Context, userName string) (Response, bool) {
			log.WithField("userName", userName).Info("检查用户名可用性")

			_, taken := unavailable[userName]
			body := wire.Object(
				wire.Field{Key: "isAvailable", Value: !taken},
				wire.Field{Key: "userName", Value: userName},
			)
			return jsonResponse(http.StatusOK, body), true
		},
	}
}
