// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"fmt"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/infinite-iroha/davcore/dav/davpath"
	"github.com/infinite-iroha/davcore/dav/locks"
)

// RenderActiveLock writes one RFC 4918 §14.1 <D:activelock> element for
// info, the shape LOCK's response body and the DAV:lockdiscovery live
// property both need.
func RenderActiveLock(buf *bytebufferpool.ByteBuffer, info *locks.Info) {
	buf.WriteString("<D:activelock>")
	if info.Scope == locks.ScopeExclusive {
		buf.WriteString("<D:lockscope><D:exclusive/></D:lockscope>")
	} else {
		buf.WriteString("<D:lockscope><D:shared/></D:lockscope>")
	}
	buf.WriteString("<D:locktype><D:write/></D:locktype>")
	depth := "infinity"
	if info.ZeroDepth {
		depth = "0"
	}
	fmt.Fprintf(buf, "<D:depth>%s</D:depth>", depth)
	if info.OwnerXML != "" {
		fmt.Fprintf(buf, "<D:owner>%s</D:owner>", info.OwnerXML)
	}
	if info.Duration >= 0 {
		fmt.Fprintf(buf, "<D:timeout>Second-%d</D:timeout>", int64(info.Duration/time.Second))
	} else {
		buf.WriteString("<D:timeout>Infinite</D:timeout>")
	}
	fmt.Fprintf(buf, "<D:locktoken><D:href>%s</D:href></D:locktoken>", xmlEscape(info.Token))
	fmt.Fprintf(buf, "<D:lockroot><D:href>%s</D:href></D:lockroot>", xmlEscape(davpath.URLEncode(info.Root)))
	buf.WriteString("</D:activelock>")
}

// RenderLockDiscovery renders the DAV:lockdiscovery live property's inner
// XML for every lock covering a resource, per spec.md §3's reserved
// live-property list — zero <D:activelock> children when unlocked.
func RenderLockDiscovery(covering []*locks.Info) string {
	if len(covering) == 0 {
		return ""
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, info := range covering {
		RenderActiveLock(buf, info)
	}
	return string(buf.B)
}

// supportedLockEntries is the fixed DAV:supportedlock descriptor for a
// backend wired to a lock manager: shared and exclusive write locks,
// per spec.md §3/RFC 4918 §14.18 — davcore never supports any other
// lock type, so this never varies by resource.
const supportedLockEntries = `<D:lockentry><D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>` +
	`<D:lockentry><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>`

// RenderSupportedLock renders the DAV:supportedlock live property's
// inner XML.
func RenderSupportedLock() string {
	return supportedLockEntries
}
