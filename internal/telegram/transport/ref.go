package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRef 解析会话引用：数字 ID、@username、t.me 链接
// 返回 int64 或 "@username"，可直接作为 Bot API 的 chat_id
func ParseRef(ref string) (any, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrResolve)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}

	for _, prefix := range []string{"https://", "http://"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	for _, prefix := range []string{"t.me/", "telegram.me/"} {
		if strings.HasPrefix(ref, prefix) {
			ref = strings.TrimPrefix(ref, prefix)
			if strings.HasPrefix(ref, "+") || strings.HasPrefix(ref, "joinchat/") {
				return nil, fmt.Errorf("%w: invite links are not supported: %s", ErrResolve, ref)
			}
			ref = strings.SplitN(ref, "/", 2)[0]
			break
		}
	}
	ref = strings.TrimPrefix(ref, "@")
	if ref == "" || strings.ContainsAny(ref, " /?") {
		return nil, fmt.Errorf("%w: invalid reference", ErrResolve)
	}
	return "@" + ref, nil
}

func formatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
