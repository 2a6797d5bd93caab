package api

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	pipelineGroup := s.router.Group("/pipeline")
	{
		pipelineGroup.POST("/run", s.handleRunPipeline)
		pipelineGroup.GET("/runs", s.handleListRuns)
	}

	schedulerGroup := s.router.Group("/scheduler")
	{
		schedulerGroup.POST("/start", s.handleSchedulerStart)
		schedulerGroup.POST("/stop", s.handleSchedulerStop)
		schedulerGroup.GET("/status", s.handleSchedulerStatus)
	}

	s.router.GET("/accounts", s.handleListAccounts)
	s.router.GET("/signals", s.handleListSignals)
	s.router.GET("/decisions", s.handleListDecisions)
}
