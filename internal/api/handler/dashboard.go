package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the ops dashboard page.
type DashboardHandler struct{}

// NewDashboardHandler creates a new dashboard handler.
// Parameters: none.
// Returns:
//   - *DashboardHandler: initialized handler.
func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// Page serves the ops dashboard HTML page: a build submission form, the live
// job ledger, and the committed engine list, all backed by the public API.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes HTML response).
func (h *DashboardHandler) Page(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Quern Ops</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            padding: 2rem;
        }
        .container {
            max-width: 840px;
            margin: 0 auto;
        }
        .card {
            background: white;
            border-radius: 16px;
            padding: 2rem;
            box-shadow: 0 10px 40px rgba(0,0,0,0.2);
            margin-bottom: 1.5rem;
        }
        h1 {
            color: #333;
            margin-bottom: 0.5rem;
            font-size: 1.8rem;
        }
        h2 {
            color: #333;
            margin-bottom: 1rem;
            font-size: 1.2rem;
        }
        .subtitle {
            color: #666;
            margin-bottom: 1.5rem;
        }
        .form-group {
            margin-bottom: 1rem;
        }
        label {
            display: block;
            margin-bottom: 0.5rem;
            color: #444;
            font-weight: 500;
        }
        select, input[type="text"], input[type="file"] {
            width: 100%;
            padding: 0.75rem;
            border: 2px solid #e0e0e0;
            border-radius: 8px;
            font-size: 1rem;
            transition: border-color 0.2s;
        }
        select:focus, input:focus {
            outline: none;
            border-color: #667eea;
        }
        .checkbox-group {
            display: flex;
            align-items: center;
            gap: 0.5rem;
        }
        .checkbox-group input {
            width: 18px;
            height: 18px;
        }
        button {
            width: 100%;
            padding: 1rem;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            border: none;
            border-radius: 8px;
            font-size: 1.1rem;
            font-weight: 600;
            cursor: pointer;
            transition: transform 0.2s, box-shadow 0.2s;
        }
        button:hover:not(:disabled) {
            transform: translateY(-2px);
            box-shadow: 0 5px 20px rgba(102, 126, 234, 0.4);
        }
        button:disabled {
            opacity: 0.6;
            cursor: not-allowed;
        }
        .status {
            padding: 1rem;
            border-radius: 8px;
            margin-top: 1rem;
            display: none;
        }
        .status.success {
            background: #d4edda;
            color: #155724;
            display: block;
        }
        .status.error {
            background: #f8d7da;
            color: #721c24;
            display: block;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            font-size: 0.9rem;
        }
        th, td {
            text-align: left;
            padding: 0.6rem 0.5rem;
            border-bottom: 1px solid #e0e0e0;
        }
        th { color: #666; font-weight: 600; }
        .pill {
            display: inline-block;
            padding: 0.2rem 0.6rem;
            border-radius: 999px;
            font-size: 0.8rem;
            font-weight: 600;
        }
        .pill.pending { background: #fff3cd; color: #856404; }
        .pill.active { background: #cfe2ff; color: #084298; }
        .pill.succeeded { background: #d4edda; color: #155724; }
        .pill.failed { background: #f8d7da; color: #721c24; }
        .cancel-btn {
            width: auto;
            padding: 0.3rem 0.8rem;
            font-size: 0.8rem;
            background: #f8d7da;
            color: #721c24;
        }
        .mono { font-family: ui-monospace, Menlo, monospace; font-size: 0.85rem; }
        .err-msg { color: #721c24; font-size: 0.8rem; }
        .quick-links {
            display: flex;
            gap: 1rem;
            flex-wrap: wrap;
        }
        .quick-links a {
            flex: 1;
            min-width: 120px;
            padding: 0.75rem;
            background: #f8f9fa;
            color: #333;
            text-decoration: none;
            border-radius: 8px;
            text-align: center;
            transition: background 0.2s;
        }
        .quick-links a:hover {
            background: #e9ecef;
        }
        .spinner {
            display: inline-block;
            width: 16px;
            height: 16px;
            border: 2px solid #ffffff;
            border-radius: 50%;
            border-top-color: transparent;
            animation: spin 1s linear infinite;
            margin-right: 8px;
        }
        @keyframes spin {
            to { transform: rotate(360deg); }
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="card">
            <h1>Quern Ops</h1>
            <p class="subtitle">Build and monitor query engines</p>

            <form id="buildForm">
                <div class="form-group">
                    <label for="upload">Upload document (.txt, .md, .csv, .pdf)</label>
                    <input type="file" id="upload" accept=".txt,.md,.csv,.pdf">
                </div>

                <div class="form-group">
                    <label for="documentRef">Document reference</label>
                    <input type="text" id="documentRef" placeholder="documents/…">
                </div>

                <div class="form-group">
                    <label for="engineName">Engine name</label>
                    <input type="text" id="engineName" placeholder="my-knowledge-base">
                </div>

                <div class="form-group">
                    <label for="llmType">Embedding provider</label>
                    <select id="llmType"></select>
                </div>

                <div class="form-group">
                    <label for="ownerId">Owner ID</label>
                    <input type="text" id="ownerId" placeholder="ops">
                </div>

                <div class="form-group">
                    <div class="checkbox-group">
                        <input type="checkbox" id="isPublic">
                        <label for="isPublic" style="margin: 0;">Public engine</label>
                    </div>
                </div>

                <button type="submit" id="submitBtn">Start build</button>
            </form>

            <div id="status" class="status"></div>
        </div>

        <div class="card">
            <h2>Jobs</h2>
            <table>
                <thead>
                    <tr><th>Job</th><th>Engine</th><th>Status</th><th>Detail</th><th></th></tr>
                </thead>
                <tbody id="jobRows"><tr><td colspan="5">Loading…</td></tr></tbody>
            </table>
        </div>

        <div class="card">
            <h2>Quick links</h2>
            <div class="quick-links">
                <a href="/api/v1/engines">Engines</a>
                <a href="/api/v1/jobs">Jobs</a>
                <a href="/api/v1/providers">Providers</a>
                <a href="/health">Health</a>
            </div>
        </div>
    </div>

    <script>
        var form = document.getElementById('buildForm');
        var submitBtn = document.getElementById('submitBtn');
        var statusDiv = document.getElementById('status');
        var jobRows = document.getElementById('jobRows');

        function setStatus(kind, text) {
            statusDiv.className = 'status ' + kind;
            statusDiv.textContent = text;
        }

        async function loadProviders() {
            try {
                var res = await fetch('/api/v1/providers');
                var data = await res.json();
                var select = document.getElementById('llmType');
                select.innerHTML = '';
                (data.providers || []).forEach(function(p) {
                    var opt = document.createElement('option');
                    opt.value = p.name;
                    opt.textContent = p.name + ' (' + p.model + ', ' + p.dimensions + 'd)';
                    if (p.is_default) opt.selected = true;
                    select.appendChild(opt);
                });
            } catch (err) { /* leave the select empty */ }
        }

        document.getElementById('upload').addEventListener('change', async function() {
            if (!this.files.length) return;
            var fd = new FormData();
            fd.append('file', this.files[0]);
            setStatus('success', 'Uploading ' + this.files[0].name + '…');
            try {
                var res = await fetch('/api/v1/documents', { method: 'POST', body: fd });
                var data = await res.json();
                if (res.ok) {
                    document.getElementById('documentRef').value = data.document_ref;
                    setStatus('success', 'Uploaded as ' + data.document_ref);
                } else {
                    setStatus('error', data.error || 'Upload failed');
                }
            } catch (err) {
                setStatus('error', 'Upload failed: ' + err.message);
            }
        });

        form.addEventListener('submit', async function(e) {
            e.preventDefault();
            submitBtn.disabled = true;
            submitBtn.innerHTML = '<span class="spinner"></span>Submitting…';
            try {
                var res = await fetch('/api/v1/engines', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({
                        document_ref: document.getElementById('documentRef').value,
                        engine_name: document.getElementById('engineName').value,
                        llm_type: document.getElementById('llmType').value,
                        owner_id: document.getElementById('ownerId').value,
                        is_public: document.getElementById('isPublic').checked
                    })
                });
                var data = await res.json();
                if (res.status === 202) {
                    setStatus('success', 'Build accepted, job ' + data.job_id);
                    refreshJobs();
                } else {
                    setStatus('error', data.error || 'Submission failed');
                }
            } catch (err) {
                setStatus('error', 'Submission failed: ' + err.message);
            } finally {
                submitBtn.disabled = false;
                submitBtn.textContent = 'Start build';
            }
        });

        async function cancelJob(id) {
            try {
                await fetch('/api/v1/jobs/' + id + '/cancel', { method: 'POST' });
            } catch (err) { /* surfaced on the next refresh */ }
            refreshJobs();
        }

        function jobRow(job) {
            var tr = document.createElement('tr');

            var idCell = document.createElement('td');
            idCell.className = 'mono';
            idCell.textContent = job.id.slice(0, 8);
            idCell.title = job.id;
            tr.appendChild(idCell);

            var nameCell = document.createElement('td');
            nameCell.textContent = job.engine_name;
            tr.appendChild(nameCell);

            var statusCell = document.createElement('td');
            var pill = document.createElement('span');
            pill.className = 'pill ' + job.status;
            pill.textContent = job.status;
            statusCell.appendChild(pill);
            tr.appendChild(statusCell);

            var detailCell = document.createElement('td');
            if (job.status === 'failed') {
                detailCell.className = 'err-msg';
                detailCell.textContent = (job.error_kind || '') + ': ' + (job.error_message || '');
            } else if (job.result_engine_id) {
                detailCell.className = 'mono';
                detailCell.textContent = job.result_engine_id.slice(0, 8);
                detailCell.title = job.result_engine_id;
            }
            tr.appendChild(detailCell);

            var actionCell = document.createElement('td');
            if (job.status === 'pending' || job.status === 'active') {
                var btn = document.createElement('button');
                btn.className = 'cancel-btn';
                btn.textContent = job.cancel_requested ? 'Cancelling…' : 'Cancel';
                btn.disabled = !!job.cancel_requested;
                btn.addEventListener('click', function() { cancelJob(job.id); });
                actionCell.appendChild(btn);
            }
            tr.appendChild(actionCell);

            return tr;
        }

        async function refreshJobs() {
            try {
                var res = await fetch('/api/v1/jobs?limit=20');
                var data = await res.json();
                jobRows.innerHTML = '';
                if (!data.jobs || !data.jobs.length) {
                    var tr = document.createElement('tr');
                    var td = document.createElement('td');
                    td.colSpan = 5;
                    td.textContent = 'No jobs yet';
                    tr.appendChild(td);
                    jobRows.appendChild(tr);
                    return;
                }
                data.jobs.forEach(function(job) { jobRows.appendChild(jobRow(job)); });
            } catch (err) { /* keep the previous rows */ }
        }

        loadProviders();
        refreshJobs();
        setInterval(refreshJobs, 3000);
    </script>
</body>
</html>`
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}
