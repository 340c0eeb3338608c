package mcp

import "github.com/mark3labs/mcp-go/mcp"

var keywordsBuildToolDef = mcp.NewTool("keywords_build",
	mcp.WithDescription("Fetch the blacklist sources and build the keyword set. "+
		"Each source must be an absolute http(s) URL returning a JSON array; non-string entries are ignored. "+
		"In tolerant mode failing sources are skipped, in strict mode any failure yields an empty set. "+
		"The run is recorded in the fetch history."),
	mcp.WithArray("sources",
		mcp.Description("Blacklist URLs. Each entry may hold several newline-separated URLs. Default: configured list_urls."),
		mcp.WithStringItems(),
	),
	mcp.WithString("mode",
		mcp.Description("Failure policy. Default: configured fetch_mode."),
		mcp.Enum("tolerant", "strict"),
	),
)

var keywordsCheckToolDef = mcp.NewTool("keywords_check",
	mcp.WithDescription("Report which blacklist sources would be fetched without fetching them."),
	mcp.WithArray("sources",
		mcp.Description("Candidate URLs. Default: configured list_urls."),
		mcp.WithStringItems(),
	),
)

var filterHTMLToolDef = mcp.NewTool("filter_html",
	mcp.WithDescription("Classify every message bubble in a chat page. "+
		"Sponsored bubbles are marked for suppression; bubbles whose text or links contain a blacklisted keyword "+
		"are collapsed behind a \"Hidden by filter\" annotation. Returns the annotated page with the stylesheet injected."),
	mcp.WithString("html",
		mcp.Required(),
		mcp.Description("Page markup, a full document or a body fragment."),
	),
	mcp.WithString("base_url",
		mcp.Description("URL relative link targets are resolved against."),
	),
	mcp.WithArray("keywords",
		mcp.Description("Use these keywords instead of fetching the blacklist."),
		mcp.WithStringItems(),
	),
	mcp.WithArray("sources",
		mcp.Description("Blacklist URLs (ignored when keywords is set). Default: configured list_urls."),
		mcp.WithStringItems(),
	),
	mcp.WithString("mode",
		mcp.Description("Failure policy for fetching. Default: configured fetch_mode."),
		mcp.Enum("tolerant", "strict"),
	),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List recorded keyword builds, newest first."),
	mcp.WithString("status",
		mcp.Description("Only runs with this outcome."),
		mcp.Enum("ok", "failed"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max items (default 20, max 100)."),
	),
	mcp.WithNumber("offset",
		mcp.Description("Items to skip."),
	),
)

var historyFetchToolDef = mcp.NewTool("history_fetch",
	mcp.WithDescription("Fetch one recorded keyword build with its per-source reports."),
	mcp.WithString("id",
		mcp.Description("Run ID."),
	),
	mcp.WithBoolean("latest",
		mcp.Description("Fetch the most recent run instead of id."),
	),
)

var historyPurgeToolDef = mcp.NewTool("history_purge",
	mcp.WithDescription("Delete recorded keyword builds older than the given number of days."),
	mcp.WithNumber("older_than_days",
		mcp.Required(),
		mcp.Description("Age threshold in days."),
	),
)
